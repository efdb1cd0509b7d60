package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"ai-consultation-be/internal/bootstrap"
	"ai-consultation-be/internal/config"
	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/pkg/consultation"
	"ai-consultation-be/pkg/transcript"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

var palette = []*color.Color{
	color.New(color.FgBlue, color.Bold),
	color.New(color.FgGreen, color.Bold),
	color.New(color.FgMagenta, color.Bold),
	color.New(color.FgCyan, color.Bold),
}

var (
	userColor   = color.New(color.FgWhite, color.Bold)
	systemColor = color.New(color.FgYellow, color.Bold)
	faint       = color.New(color.Faint)
)

func main() {
	logPath := flag.String("log", "logs/consult.log", "file receiving application and transcript logs")
	personaFile := flag.String("personas", "", "persona roster YAML, empty uses the built-in roster")
	knowledgeDir := flag.String("knowledge", "", "directory of documents to load instead of the sample corpus")
	flag.Parse()

	cfg := config.Load()
	if *personaFile != "" {
		cfg.Consultation.PersonaFile = *personaFile
	}
	if *knowledgeDir != "" {
		cfg.Knowledge.Directory = *knowledgeDir
	}

	// Logs go to the file only so that they do not interleave with the dialogue.
	sysLogger := logger.NewIsolatedLogger(*logPath)
	defer sysLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine, err := bootstrap.NewEngine(cfg, sysLogger)
	if err != nil {
		color.Red("Failed to start: %v", err)
		os.Exit(1)
	}
	if err := engine.SeedKnowledge(ctx); err != nil {
		color.Red("Failed to load knowledge: %v", err)
		os.Exit(1)
	}

	orchestrator := engine.NewOrchestrator(consultation.NewLogSink(sysLogger))
	session := orchestrator.NewSession(uuid.NewString())

	colors := make(map[string]*color.Color)
	names := make([]string, 0, engine.Roster.Len())
	for i, p := range engine.Roster.Profiles() {
		colors[p.ID] = palette[i%len(palette)]
		names = append(names, "@"+p.Name())
	}

	color.Cyan("AI consultation (%s, %d knowledge chunks)", cfg.Ai.LLMProvider, engine.Store.Len())
	faint.Printf("Panel: %s. Mention a name to address it directly. Type quit to leave.\n\n", strings.Join(names, ", "))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		userColor.Print("You> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if isQuit(input) {
			break
		}

		result, err := orchestrator.RunRound(ctx, session, input)
		if errors.Is(err, consultation.ErrSessionEnded) {
			color.Red("The consultation has ended.")
			break
		}
		if result == nil {
			color.Red("Round failed: %v", err)
			continue
		}

		for _, turn := range result.Turns {
			printTurn(turn, colors)
		}
		var roundErr *consultation.RoundError
		if errors.As(err, &roundErr) {
			color.Red("No persona could answer this round: %v", roundErr)
		}
		if result.SessionEnded {
			color.Red("The consultation was closed after repeated policy violations.")
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	orchestrator.EndSession(session, consultation.EndReasonUser)
	faint.Println("Goodbye.")
}

func isQuit(input string) bool {
	switch strings.ToLower(input) {
	case "quit", "exit", "/quit", "/exit":
		return true
	}
	return false
}

func printTurn(turn transcript.Turn, colors map[string]*color.Color) {
	c, ok := colors[string(turn.Speaker)]
	if !ok {
		c = systemColor
	}

	label := turn.Label()
	if turn.Rebuttal {
		label += " (rebuttal)"
	}
	c.Printf("%s> ", label)
	fmt.Println(turn.Rendered)

	var notes []string
	if turn.Intercepted {
		notes = append(notes, "moderated: "+turn.Reason)
	}
	if turn.Fallback {
		notes = append(notes, "fallback reply")
	}
	if len(turn.Citations) > 0 {
		notes = append(notes, fmt.Sprintf("cites %d knowledge chunk(s)", len(turn.Citations)))
	}
	if len(notes) > 0 {
		faint.Printf("   [%s]\n", strings.Join(notes, ", "))
	}
	fmt.Println()
}
