package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/slior/dialectic/pkg/api/debate"
	"github.com/slior/dialectic/pkg/config"
	"github.com/slior/dialectic/pkg/core/agent"
	"github.com/slior/dialectic/pkg/core/model"
	"github.com/slior/dialectic/pkg/core/prompt"
	"github.com/slior/dialectic/pkg/core/store"
	"github.com/slior/dialectic/pkg/core/tracing"
	"github.com/slior/dialectic/pkg/runner"
)

func main() {
	godotenv.Load()

	cfgPath := envOr("DEBATE_CONFIG", "config/debate.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("[FATAL] Failed to load %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	st, err := store.New(envOr("DEBATE_STORE_DIR", "data/debates"))
	if err != nil {
		fmt.Printf("[FATAL] Failed to open debate store: %v\n", err)
		os.Exit(1)
	}

	allAgents := append([]model.AgentConfig{cfg.Judge}, cfg.Agents...)
	providers, err := runner.BuildProviders(allAgents, "mock response")
	if err != nil {
		fmt.Printf("[FATAL] Failed to build providers: %v\n", err)
		os.Exit(1)
	}
	agentMgr := agent.NewManager(cfg.DefaultProvider, providers)

	promptsDir := envOr("DEBATE_PROMPTS_DIR", "resources/prompts")
	prompts := prompt.NewDefaultRolePrompts()
	if _, statErr := os.Stat(promptsDir); statErr == nil {
		if loadErr := prompt.LoadFromDirectory(prompts, promptsDir); loadErr != nil {
			fmt.Printf("[WARNING] Failed to load prompt library from %s: %v\n", promptsDir, loadErr)
			fmt.Println("  Falling back to hardcoded role prompts")
		} else {
			fmt.Printf("[PROMPT] Loaded %d prompts from %s\n", prompts.Count(), promptsDir)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	inst, shutdown := tracing.Init(ctx, "dialectic-api")
	cancel()
	defer shutdown(context.Background())

	rn := runner.New(st, agentMgr, prompts, inst)

	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			rn.Cleanup(24 * time.Hour)
		}
	}()

	h := debate.New(rn)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /debates", h.HandleStartDebate)
	mux.HandleFunc("OPTIONS /debates", h.HandleStartDebate)
	mux.HandleFunc("GET /debates/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.HandleGetDebate(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /debates/{id}/stream", func(w http.ResponseWriter, r *http.Request) {
		h.HandleStreamDebate(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /debates/{id}/feedback", func(w http.ResponseWriter, r *http.Request) {
		h.HandleFeedback(w, r, r.PathValue("id"))
	})

	addr := envOr("DEBATE_API_ADDR", ":8080")
	fmt.Printf("Dialectic API server starting on %s...\n", addr)
	fmt.Println("  - POST   /debates")
	fmt.Println("  - GET    /debates/{id}")
	fmt.Println("  - GET    /debates/{id}/stream  (SSE)")
	fmt.Println("  - POST   /debates/{id}/feedback")

	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Printf("[FATAL] Server failed to start: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
