// Package cli runs the interactive mission console.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"overseer/internal/agent"
	"overseer/internal/display"
	"overseer/internal/listener"
	"overseer/internal/mission"
	"overseer/internal/ratelimit"
	"overseer/internal/session"
)

const defaultLogTail = 10

var (
	engine   *mission.Engine
	sessions *session.Store
)

var rootCmd = &cobra.Command{
	Use:   "overseer",
	Short: "A multi-agent mission console powered by Gemini",
	Long:  `An orchestrator that plans a mission from your objective, delegates tasks to specialist agents and synthesizes a final answer, pacing itself against a token budget.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := listener.Init("> "); err != nil {
			fmt.Println("Failed to init terminal input:", err)
			os.Exit(1)
		}
		defer listener.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go engine.Run(ctx)
		go watchMission(ctx)

		// Graceful shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-c
			engine.Teardown()
			fmt.Println("\nGoodbye!")
			os.Exit(0)
		}()

		offerAutosave()

		listener.Notify("Ready. Type 'run <objective>' to start a mission, 'help' for commands, 'exit' to quit.")

		for {
			line, err := listener.ReadLine()
			if err != nil {
				break
			}
			if line == "" {
				continue
			}
			if !dispatch(line) {
				break
			}
		}

		engine.Teardown()
		fmt.Println("Goodbye!")
	},
}

func Execute(eng *mission.Engine, store *session.Store) {
	engine = eng
	sessions = store
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// dispatch handles one command line. It returns false when the loop should
// exit.
func dispatch(line string) bool {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(verb) {
	case "exit", "quit":
		return false
	case "help":
		listener.Println(helpText)
	case "run":
		cmdRun(rest)
	case "status":
		listener.Println(display.FormatStatus(engine.Snapshot(), engine.RateLimit(), time.Now()))
	case "tasks":
		listener.Println(display.FormatTasks(engine.Snapshot()))
	case "logs":
		cmdLogs(rest)
	case "output":
		listener.Println(display.FormatOutput(engine.Snapshot()))
	case "pause":
		engine.Pause()
		listener.Println("Mission paused.")
	case "resume":
		engine.Resume()
		listener.Println("Mission resumed.")
	case "reset":
		cmdReset()
	case "save":
		cmdSave()
	case "sessions":
		cmdSessions()
	case "load":
		cmdLoad(rest)
	case "delete":
		cmdDelete(rest)
	case "limit":
		cmdLimit(rest)
	case "prompt":
		cmdPrompt(rest)
	default:
		listener.Println(fmt.Sprintf("Unknown command %q. Type 'help' for the list.", verb))
	}
	return true
}

func cmdRun(objective string) {
	if objective == "" {
		listener.Println("Usage: run <objective>")
		return
	}
	if err := engine.Start(objective); err != nil {
		listener.Println(fmt.Sprintf("[Start FAILED] %v", err))
		return
	}
	listener.Println("Mission started. Watch progress with 'status' and 'tasks'.")
}

func cmdLogs(rest string) {
	n := defaultLogTail
	if rest != "" {
		v, err := strconv.Atoi(rest)
		if err != nil || v <= 0 {
			listener.Println("Usage: logs [count]")
			return
		}
		n = v
	}
	listener.Println(display.FormatLogs(engine.Snapshot(), n))
}

func cmdReset() {
	st := engine.Snapshot()
	if st.Status.Active() || st.Status == mission.StatusCooldown {
		if !listener.AskYesNo("The mission is still running. Discard it?") {
			listener.Println("Reset cancelled.")
			return
		}
	}
	engine.Reset()
	listener.Println("Mission reset.")
}

func cmdSave() {
	st := engine.Snapshot()
	if st.Status == mission.StatusIdle {
		listener.Println("Nothing to save: no mission has been started.")
		return
	}
	sess := &session.SavedSession{
		ID:        session.NewID(),
		Timestamp: time.Now(),
		Query:     st.Query,
		Config:    engine.RateLimit(),
		State:     st,
	}
	if err := sessions.Put(sess); err != nil {
		listener.Println(fmt.Sprintf("[Save FAILED] %v", err))
		return
	}
	listener.Println(fmt.Sprintf("Session saved as %s.", sess.ID))
}

func cmdSessions() {
	list, err := sessions.List()
	if err != nil {
		listener.Println(fmt.Sprintf("[Sessions FAILED] %v", err))
		return
	}
	listener.Println(display.FormatSessions(list))
}

func cmdLoad(id string) {
	if id == "" {
		listener.Println("Usage: load <id>")
		return
	}
	sess, err := sessions.Get(id)
	if err != nil {
		listener.Println(fmt.Sprintf("[Load FAILED] %v", err))
		return
	}
	if sess == nil {
		listener.Println(fmt.Sprintf("No session %q. Use 'sessions' to list saved sessions.", id))
		return
	}
	if err := engine.LoadSession(sess.State, sess.Config); err != nil {
		listener.Println(fmt.Sprintf("[Load FAILED] %v", err))
		return
	}
	listener.Println(fmt.Sprintf("Session %s loaded (%s). Use 'resume' to continue it.", sess.ID, truncateQuery(sess.Query)))
}

func cmdDelete(id string) {
	if id == "" {
		listener.Println("Usage: delete <id>")
		return
	}
	if err := sessions.Delete(id); err != nil {
		listener.Println(fmt.Sprintf("[Delete FAILED] %v", err))
		return
	}
	listener.Println(fmt.Sprintf("Session %s deleted.", id))
}

func cmdLimit(rest string) {
	fields := strings.Fields(rest)
	if len(fields) != 4 {
		listener.Println("Usage: limit <maxTokens> <periodValue> <seconds|minutes|hours> <autoResumeMinutes>")
		return
	}
	max, err1 := strconv.Atoi(fields[0])
	val, err2 := strconv.Atoi(fields[1])
	unit, err3 := ratelimit.ParseUnit(fields[2])
	res, err4 := strconv.Atoi(fields[3])
	for _, err := range []error{err1, err2, err3, err4} {
		if err != nil {
			listener.Println(fmt.Sprintf("[Limit FAILED] %v", err))
			return
		}
	}
	cfg := ratelimit.Config{MaxTokens: max, PeriodValue: val, PeriodUnit: unit, AutoResumeMinutes: res}
	if err := engine.SetRateLimit(cfg); err != nil {
		listener.Println(fmt.Sprintf("[Limit FAILED] %v", err))
		return
	}
	listener.Println(fmt.Sprintf("Rate limit set: %d tokens per %d %s, auto-resume %d min.", max, val, unit, res))
}

func cmdPrompt(rest string) {
	roleName, text, _ := strings.Cut(rest, " ")
	text = strings.TrimSpace(text)
	if roleName == "" || text == "" {
		listener.Println(fmt.Sprintf("Usage: prompt <role> <text>  (roles: %v)", agent.All()))
		return
	}
	role, err := agent.Parse(roleName)
	if err != nil {
		listener.Println(fmt.Sprintf("[Prompt FAILED] %v", err))
		return
	}
	if err := engine.SetPrompt(role, text); err != nil {
		listener.Println(fmt.Sprintf("[Prompt FAILED] %v", err))
		return
	}
	listener.Println(fmt.Sprintf("Prompt for %s updated.", role))
}

// offerAutosave proposes resuming a mission left behind by a previous run.
func offerAutosave() {
	auto, err := sessions.GetAutosave()
	if err != nil {
		log.Warn().Str("component", "cli").Err(err).Msg("failed to read autosave")
		return
	}
	if auto == nil || auto.State == nil {
		return
	}
	if auto.State.Status == mission.StatusCompleted || auto.State.Status == mission.StatusIdle {
		return
	}
	q := truncateQuery(auto.Query)
	if !listener.AskYesNo(fmt.Sprintf("An unfinished mission was found: %q. Resume it?", q)) {
		if err := sessions.ClearAutosave(); err != nil {
			log.Warn().Str("component", "cli").Err(err).Msg("failed to clear autosave")
		}
		return
	}
	if err := engine.LoadSession(auto.State, auto.Config); err != nil {
		listener.Println(fmt.Sprintf("[Autosave load FAILED] %v", err))
		return
	}
	engine.Resume()
	listener.Println("Mission resumed from autosave.")
}

// watchMission announces lifecycle transitions without breaking the prompt.
func watchMission(ctx context.Context) {
	last := engine.Snapshot().Status
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		st := engine.Snapshot()
		if st.Status == last {
			continue
		}
		switch st.Status {
		case mission.StatusCompleted:
			listener.Notify("[Mission COMPLETED]")
			listener.Notify(display.FormatOutput(st))
		case mission.StatusCooldown:
			listener.Notify(fmt.Sprintf("[Mission on COOLDOWN] token window reached, resumes %s",
				st.NextAllowed.Format(time.Kitchen)))
		case mission.StatusAutoPaused:
			listener.Notify(fmt.Sprintf("[Mission AUTO-PAUSED] quota exhausted, retries %s",
				st.NextAllowed.Format(time.Kitchen)))
		case mission.StatusPaused:
			if last.Active() {
				listener.Notify("[Mission PAUSED] see 'logs' for details")
			}
		case mission.StatusWorking:
			if last == mission.StatusPlanning {
				listener.Notify(fmt.Sprintf("[Plan READY] %d task(s), running", len(st.Tasks)))
			}
		}
		last = st.Status
	}
}

func truncateQuery(q string) string {
	if r := []rune(q); len(r) > 60 {
		return string(r[:60]) + "..."
	}
	return q
}

const helpText = `Commands:
  run <objective>        start a new mission
  status                 mission and token budget summary
  tasks                  task list with progress
  logs [n]               last n log entries (default 10)
  output                 final synthesized answer
  pause | resume         suspend / continue the mission
  reset                  discard the mission and return to idle
  save                   save the mission as a named session
  sessions               list saved sessions
  load <id>              load a saved session (resumes paused)
  delete <id>            delete a saved session
  limit <max> <n> <unit> <autoResumeMin>
                         set the token budget (idle or paused only)
  prompt <role> <text>   override an agent's instructions
  exit                   quit`
