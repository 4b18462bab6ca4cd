package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"docchat/internal/store"
)

// ErrGeneration indicates the language model call failed.
var ErrGeneration = errors.New("generation failed")

const (
	// NoRelevantInfoMessage is returned without a model call when retrieval
	// found nothing above the threshold. Answering from nothing invites
	// hallucination, so we don't ask the model at all.
	NoRelevantInfoMessage = "I don't have any relevant information in my knowledge base to answer this question."

	// fallbackResponseMessage is returned when the model produces an empty
	// response.
	fallbackResponseMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

	// maxHistoryTurns bounds how much conversation history is replayed to
	// the model. Older turns are dropped.
	maxHistoryTurns = 5
)

// Turn is one prior exchange entry handed to the generator.
type Turn struct {
	Role    string
	Content string
}

// modelClient is the single model call the generator needs.
// Defined here so tests can substitute the model.
type modelClient interface {
	Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)
}

// genkitClient adapts a *genkit.Genkit instance to modelClient.
type genkitClient struct {
	g *genkit.Genkit
}

func (c genkitClient) Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
	return genkit.Generate(ctx, c.g, opts...)
}

// Generator produces grounded answers from retrieved sources and
// conversation history with a single model call per question.
type Generator struct {
	client    modelClient
	modelName string
	logger    *slog.Logger
}

// NewGenerator creates a Generator that calls the given model through Genkit.
// modelName is provider-qualified (e.g. "googleai/gemini-2.5-flash").
// A nil logger falls back to slog.Default().
func NewGenerator(g *genkit.Genkit, modelName string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{client: genkitClient{g: g}, modelName: modelName, logger: logger}
}

// Generate answers the question from the given sources and history.
// With no sources it short-circuits to NoRelevantInfoMessage without
// invoking the model. Model failures propagate as ErrGeneration; there
// are no retries.
func (g *Generator) Generate(ctx context.Context, question string, sources []store.Source, history []Turn) (string, error) {
	if len(sources) == 0 {
		g.logger.Debug("no sources retrieved, skipping model call")
		return NoRelevantInfoMessage, nil
	}

	system := systemPrompt(buildContext(sources))
	messages := buildMessages(history, question)

	resp, err := g.client.Generate(ctx,
		ai.WithModelName(g.modelName),
		ai.WithSystem(system),
		ai.WithMessages(messages...),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		g.logger.Warn("model returned empty response")
		return fallbackResponseMessage, nil
	}

	return answer, nil
}

// buildContext formats sources into the context block fed to the model.
// Each source is tagged [Source N] in retrieval rank order, so source 1 is
// the most similar chunk.
func buildContext(sources []store.Source) string {
	blocks := make([]string, len(sources))
	for i, src := range sources {
		blocks[i] = fmt.Sprintf("[Source %d] (from %s)\n%s", i+1, src.SourceName, src.Content)
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

// systemPrompt builds the system instruction embedding the context block.
func systemPrompt(context string) string {
	return fmt.Sprintf(`You are a helpful AI assistant that answers questions based on the provided context.

Rules:
1. Answer the question using ONLY the information from the provided context
2. Consider the conversation history for context
3. If the context doesn't contain enough information, say so clearly
4. Always cite your sources using [Source N] notation
5. Be conversational and helpful

Context:
%s`, context)
}

// buildMessages converts the last maxHistoryTurns history entries plus the
// current question into model messages. Pure function, independent of the
// model call.
func buildMessages(history []Turn, question string) []*ai.Message {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	messages := make([]*ai.Message, 0, len(history)+1)
	for _, turn := range history {
		if turn.Role == store.RoleUser {
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(turn.Content)))
		} else {
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(turn.Content)))
		}
	}
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(question)))
	return messages
}
