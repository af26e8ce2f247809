package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/agent-api/core/pkg/agent"
	"github.com/agent-api/core/types"
	"github.com/agent-api/ollama"
)

const ollamaSystemPrompt = "You are a visual monitoring assistant reviewing surveillance frames. Answer exactly as the user's instructions require."

// OllamaConfig configures the local Ollama backend.
type OllamaConfig struct {
	BaseURL string // scheme and host, e.g. http://localhost
	Port    int
	Model   string
	TempDir string // where frames are staged for the agent; os.TempDir() when empty
}

// Ollama runs a vision agent backed by a local Ollama server.
type Ollama struct {
	agent   *agent.DefaultAgent
	tempDir string
}

// NewOllama checks the server is reachable and initializes the agent.
func NewOllama(ctx context.Context, cfg OllamaConfig, logger *slog.Logger) (*Ollama, error) {
	if err := pingOllama(ctx, cfg); err != nil {
		return nil, err
	}

	// Set up Ollama provider
	opts := &ollama.ProviderOpts{
		Logger:  logger,
		BaseURL: cfg.BaseURL,
		Port:    cfg.Port,
	}
	provider := ollama.NewProvider(opts)
	provider.UseModel(ctx, &types.Model{
		ID: cfg.Model,
	})

	agentConf := &agent.NewAgentConfig{
		Provider:     provider,
		Logger:       logger,
		SystemPrompt: ollamaSystemPrompt,
	}

	return &Ollama{
		agent:   agent.NewAgent(agentConf),
		tempDir: cfg.TempDir,
	}, nil
}

func pingOllama(ctx context.Context, cfg OllamaConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s:%d/api/tags", cfg.BaseURL, cfg.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create ollama probe: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return &TransportError{Backend: "ollama", Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &TransportError{Backend: "ollama", StatusCode: resp.StatusCode, Err: fmt.Errorf("ollama not ready")}
	}
	return nil
}

func (o *Ollama) Name() string { return "ollama" }

// Analyze stages the image on disk, since the agent takes image paths,
// and returns the last message of the run.
func (o *Ollama) Analyze(ctx context.Context, img Image, prompt string) (string, error) {
	f, err := os.CreateTemp(o.tempDir, "motionwatch-frame-*.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to stage frame: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(img.Data); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to stage frame: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to stage frame: %w", err)
	}

	response := o.agent.Run(
		ctx,
		agent.WithInput(prompt),
		agent.WithImagePath(path),
	)
	if response.Err != nil {
		return "", &TransportError{Backend: o.Name(), Err: response.Err}
	}

	if len(response.Messages) == 0 {
		return "", &MalformedResponseError{Backend: o.Name(), Reason: "no response messages received from model"}
	}

	// the model's reply is the last message, not the prompt
	return response.Messages[len(response.Messages)-1].Content, nil
}
