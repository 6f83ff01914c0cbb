// Command sparring runs one live roleplay training session in the
// terminal: mic in, agent speech out, transcript and report at the end.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sparring-ai/sparring/pkg/analysis"
	"github.com/sparring-ai/sparring/pkg/channel"
	"github.com/sparring-ai/sparring/pkg/channel/geminilive"
	"github.com/sparring-ai/sparring/pkg/channel/ws"
	"github.com/sparring-ai/sparring/pkg/core/capture"
	"github.com/sparring-ai/sparring/pkg/core/devices"
	"github.com/sparring-ai/sparring/pkg/core/session"
	"github.com/sparring-ai/sparring/pkg/scenario"
)

const defaultRecordDir = "recordings"

type runConfig struct {
	ScenarioID  string
	ListOnly    bool
	ListDevices bool
	InputDevice string
	WSURL       string
	RecordDir   string
	Calibrate   bool
	Threshold   float64
	Analyze     bool
	Verbose     bool
	APIKey      string
}

func parseRunConfig(args []string, getenv func(string) string) (runConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := runConfig{}
	fs := flag.NewFlagSet("sparring", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ScenarioID, "scenario", "salary-negotiation", "scenario id (see -list)")
	fs.BoolVar(&cfg.ListOnly, "list", false, "list available scenarios and exit")
	fs.BoolVar(&cfg.ListDevices, "devices", false, "list audio devices and exit")
	fs.StringVar(&cfg.InputDevice, "mic", "", "input device id (default: platform default)")
	fs.StringVar(&cfg.WSURL, "ws-url", strings.TrimSpace(getenv("SPARRING_WS_URL")), "connect through a websocket gateway instead of Gemini Live")
	fs.StringVar(&cfg.RecordDir, "record-dir", defaultRecordDir, "directory for session recordings (empty disables)")
	fs.BoolVar(&cfg.Calibrate, "calibrate", false, "measure the noise floor before connecting")
	fs.Float64Var(&cfg.Threshold, "threshold", 0, "voice activity threshold (RMS, 0 to 1)")
	fs.BoolVar(&cfg.Analyze, "analyze", false, "run the performance analysis after the session")
	fs.BoolVar(&cfg.Verbose, "v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		return runConfig{}, err
	}

	cfg.APIKey = strings.TrimSpace(getenv("GEMINI_API_KEY"))
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(getenv("GOOGLE_API_KEY"))
	}

	if err := validateRunConfig(cfg); err != nil {
		return runConfig{}, err
	}
	return cfg, nil
}

func validateRunConfig(cfg runConfig) error {
	if cfg.ListOnly || cfg.ListDevices {
		return nil
	}
	if cfg.WSURL == "" && cfg.APIKey == "" {
		return errors.New("GEMINI_API_KEY (or GOOGLE_API_KEY) is required, or pass -ws-url")
	}
	if cfg.Analyze && cfg.APIKey == "" {
		return errors.New("-analyze requires GEMINI_API_KEY (or GOOGLE_API_KEY)")
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return errors.New("threshold must be between 0 and 1")
	}
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func listScenarios(out io.Writer) {
	for _, sc := range scenario.Builtin() {
		fmt.Fprintf(out, "%-20s %-9s %4s  %s\n", sc.ID, sc.Difficulty, sc.Duration, sc.Description)
	}
}

func listDevices(out io.Writer, logger *slog.Logger) error {
	enum, err := devices.NewFFmpegEnumerator()
	if err != nil {
		return err
	}
	reg := devices.NewRegistry(enum, logger)
	defer reg.Close()
	reg.Refresh(context.Background())

	fmt.Fprintln(out, "inputs:")
	for _, d := range reg.ListInputs() {
		mark := " "
		if d.Default {
			mark = "*"
		}
		fmt.Fprintf(out, "  %s %-30s %s\n", mark, d.ID, d.Label)
	}
	fmt.Fprintln(out, "outputs:")
	for _, d := range reg.ListOutputs() {
		mark := " "
		if d.Default {
			mark = "*"
		}
		fmt.Fprintf(out, "  %s %-30s %s\n", mark, d.ID, d.Label)
	}
	return nil
}

func buildDialer(cfg runConfig, logger *slog.Logger) channel.Dialer {
	if cfg.WSURL != "" {
		return &ws.Dialer{URL: cfg.WSURL, Logger: logger}
	}
	return geminilive.NewDialer(cfg.APIKey, logger)
}

func run(ctx context.Context, cfg runConfig, in io.Reader, out io.Writer) error {
	logger := newLogger(cfg.Verbose)

	if cfg.ListOnly {
		listScenarios(out)
		return nil
	}
	if cfg.ListDevices {
		return listDevices(out, logger)
	}

	sc, err := scenario.ByID(cfg.ScenarioID)
	if err != nil {
		return err
	}

	sess, err := session.New(session.Config{
		Scenario:     sc,
		InputDevice:  cfg.InputDevice,
		RecordingDir: cfg.RecordDir,
		Threshold:    cfg.Threshold,
		Logger:       logger,
	}, session.Deps{
		Dialer: buildDialer(cfg, logger),
	})
	if err != nil {
		return err
	}

	if cfg.Calibrate {
		fmt.Fprintln(out, "calibrating... stay quiet for 3 seconds")
		threshold, err := sess.Calibrate(ctx, capture.DefaultCalibration())
		if err != nil {
			return fmt.Errorf("calibration failed: %w", err)
		}
		fmt.Fprintf(out, "noise floor threshold: %.4f\n", threshold)
	}

	fmt.Fprintf(out, "scenario: %s (%s)\n", sc.Name, sc.Difficulty)
	fmt.Fprintln(out, "connecting...")
	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer sess.Disconnect()
	fmt.Fprintln(out, "connected. commands: mute | unmute | marker [label] | mood | quit")

	commands := make(chan string)
	go func() {
		defer close(commands)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			commands <- strings.TrimSpace(scanner.Text())
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	timeUp := time.After(sc.Duration)
	poll := time.NewTicker(500 * time.Millisecond)
	defer poll.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-sig:
			fmt.Fprintln(out, "\nending session...")
			break loop
		case <-timeUp:
			fmt.Fprintln(out, "time is up, ending session...")
			break loop
		case <-poll.C:
			if state := sess.State(); state != session.Connected {
				if state == session.Errored {
					fmt.Fprintf(out, "session failed: %s\n", sess.Reason())
				}
				break loop
			}
		case cmd, ok := <-commands:
			if !ok {
				break loop
			}
			if done := handleCommand(cmd, sess, out); done {
				break loop
			}
		}
	}

	sess.Disconnect()
	printSummary(out, sess)

	if cfg.Analyze {
		fmt.Fprintln(out, "analyzing...")
		report, err := analysis.NewClient(cfg.APIKey, logger).Analyze(ctx, sess.Transcript(), sc)
		if err != nil {
			if errors.Is(err, analysis.ErrEmptyDialogue) {
				fmt.Fprintln(out, "nothing to analyze")
				return nil
			}
			return fmt.Errorf("analysis failed: %w", err)
		}
		printReport(out, report)
	}
	return nil
}

func handleCommand(cmd string, sess *session.Session, out io.Writer) (done bool) {
	switch {
	case cmd == "":
	case cmd == "quit" || cmd == "exit":
		return true
	case cmd == "mute":
		sess.SetMuted(true)
		fmt.Fprintln(out, "muted")
	case cmd == "unmute":
		sess.SetMuted(false)
		fmt.Fprintln(out, "unmuted")
	case cmd == "mood":
		mood := sess.Mood()
		if mood == "" {
			mood = "unknown"
		}
		fmt.Fprintf(out, "interlocutor mood: %s\n", mood)
		for _, ins := range sess.Insights() {
			fmt.Fprintf(out, "  [%s] %s\n", ins.Type, ins.Text)
		}
	case cmd == "marker" || strings.HasPrefix(cmd, "marker "):
		label := strings.TrimSpace(strings.TrimPrefix(cmd, "marker"))
		m := sess.AddMarker(label)
		fmt.Fprintf(out, "marker at %s\n", m.Offset.Round(time.Second))
	default:
		fmt.Fprintf(out, "unknown command %q\n", cmd)
	}
	return false
}

func printSummary(out io.Writer, sess *session.Session) {
	items := sess.Transcript()
	if len(items) > 0 {
		fmt.Fprintln(out, "\ntranscript:")
		for _, it := range items {
			speaker := "agent"
			if it.Role == "user" {
				speaker = "you  "
			}
			fmt.Fprintf(out, "  %s  %s\n", speaker, it.Text)
		}
	}
	if markers := sess.Markers(); len(markers) > 0 {
		fmt.Fprintln(out, "markers:")
		for _, m := range markers {
			if m.Label != "" {
				fmt.Fprintf(out, "  %s  %s\n", m.Offset.Round(time.Second), m.Label)
			} else {
				fmt.Fprintf(out, "  %s\n", m.Offset.Round(time.Second))
			}
		}
	}
	if art := sess.Artifact(); art != nil {
		fmt.Fprintf(out, "recording: %s (%s)\n", art.Path, art.Duration.Round(time.Second))
	}
}

func printReport(out io.Writer, r *analysis.Report) {
	fmt.Fprintf(out, "\nscore: %d/100  outcome: %s\n", r.Score, r.Outcome)
	fmt.Fprintf(out, "clarity %d  persuasion %d  empathy %d  resilience %d\n",
		r.Metrics.Clarity, r.Metrics.Persuasion, r.Metrics.Empathy, r.Metrics.Resilience)
	fmt.Fprintf(out, "\n%s\n", r.Feedback)
	for _, s := range r.Strengths {
		fmt.Fprintf(out, "  + %s\n", s)
	}
	for _, s := range r.Improvements {
		fmt.Fprintf(out, "  - %s\n", s)
	}
	if len(r.ObjectiveResults) > 0 {
		fmt.Fprintln(out, "\nobjectives:")
		for _, o := range r.ObjectiveResults {
			mark := "✗"
			if o.Completed {
				mark = "✓"
			}
			fmt.Fprintf(out, "  %s %s\n", mark, o.Objective)
		}
	}
}

func main() {
	_ = godotenv.Load()

	cfg, err := parseRunConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sparring: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "sparring: %v\n", err)
		os.Exit(1)
	}
}
