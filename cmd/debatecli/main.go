package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/slior/dialectic/pkg/config"
	"github.com/slior/dialectic/pkg/core/agent"
	"github.com/slior/dialectic/pkg/core/hooks"
	"github.com/slior/dialectic/pkg/core/model"
	"github.com/slior/dialectic/pkg/core/prompt"
	"github.com/slior/dialectic/pkg/core/store"
	"github.com/slior/dialectic/pkg/core/tracing"
	"github.com/slior/dialectic/pkg/runner"
)

func main() {
	godotenv.Load()

	problemFlag := flag.String("problem", "", "the problem statement to debate (reads stdin if empty)")
	contextFlag := flag.String("context", "", "additional background context for the debate")
	cfgPath := flag.String("config", "config/debate.yaml", "path to the debate config YAML file")
	storeDir := flag.String("store", "data/debates", "directory to persist debate state under")
	quiet := flag.Bool("quiet", false, "suppress live event output, print only the final solution")
	flag.Parse()

	problem := *problemFlag
	if problem == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil || len(data) == 0 {
			fmt.Fprintln(os.Stderr, "error: -problem flag or stdin input is required")
			os.Exit(1)
		}
		problem = string(data)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	st, err := store.New(*storeDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening debate store: %v\n", err)
		os.Exit(1)
	}

	allAgents := append([]model.AgentConfig{cfg.Judge}, cfg.Agents...)
	providers, err := runner.BuildProviders(allAgents, "mock response")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error building providers: %v\n", err)
		os.Exit(1)
	}
	agentMgr := agent.NewManager(cfg.DefaultProvider, providers)

	rn := runner.New(st, agentMgr, prompt.NewDefaultRolePrompts(), tracing.Noop())

	id, err := rn.StartDebate(problem, *contextFlag, cfg.Agents, cfg.Judge, cfg.Debate.DebateConfig(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error starting debate: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("debate %s started (%d agents, %d rounds)\n", id, len(cfg.Agents), cfg.Debate.Rounds)

	events, unsubscribe, ok := rn.Subscribe(id, 256)
	if !ok {
		fmt.Fprintln(os.Stderr, "error: debate not found immediately after starting")
		os.Exit(1)
	}
	defer unsubscribe()

	for ev := range events {
		if !*quiet {
			printEvent(ev)
		}
		if ev.Type == hooks.EventSynthesisComplete {
			break
		}
	}

	waitForCompletion(rn, id)

	ds, err := rn.Result(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading final state: %v\n", err)
		os.Exit(1)
	}
	printSolution(ds)
}

func printEvent(ev hooks.Event) {
	switch ev.Type {
	case hooks.EventRoundStart:
		fmt.Printf("[round %d/%d] starting\n", ev.Round, ev.TotalRounds)
	case hooks.EventPhaseStart:
		fmt.Printf("[round %d] %s phase starting (%d tasks)\n", ev.Round, ev.Phase, ev.ExpectedTaskCount)
	case hooks.EventAgentComplete:
		if ev.Err != nil {
			fmt.Printf("[round %d] %s: %s failed: %v\n", ev.Round, ev.Phase, ev.AgentID, ev.Err)
		} else {
			fmt.Printf("[round %d] %s: %s done\n", ev.Round, ev.Phase, ev.AgentID)
		}
	case hooks.EventSynthesisStart:
		fmt.Println("synthesizing final solution...")
	case hooks.EventSynthesisComplete:
		fmt.Println("synthesis complete")
	}
}

func waitForCompletion(rn *runner.Runner, id string) {
	for i := 0; i < 50; i++ {
		ds, err := rn.Result(id)
		if err == nil && (ds.Status == model.StatusCompleted || ds.Status == model.StatusFailed) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func printSolution(ds *model.DebateState) {
	fmt.Println()
	fmt.Printf("status: %s\n", ds.Status)
	if ds.FinalSolution == nil {
		fmt.Println("no solution was produced")
		return
	}
	s := ds.FinalSolution
	fmt.Printf("confidence: %d\n\n", s.Confidence)
	fmt.Println(s.Description)
	if len(s.Recommendations) > 0 {
		fmt.Println("\nrecommendations:")
		for _, r := range s.Recommendations {
			fmt.Printf("  - %s\n", r)
		}
	}
	if len(s.Tradeoffs) > 0 {
		fmt.Println("\ntradeoffs:")
		for _, t := range s.Tradeoffs {
			fmt.Printf("  - %s\n", t)
		}
	}
	if len(s.OpenQuestions) > 0 {
		fmt.Println("\nopen questions:")
		for _, q := range s.OpenQuestions {
			fmt.Printf("  - %s\n", q)
		}
	}
}
