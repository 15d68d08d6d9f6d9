// voicechat is a terminal client for voicechat-server. Each line typed on
// stdin is one chat turn; replies are printed and, when -out or -player is
// set, spoken.
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

	vlog "github.com/teslashibe/go-voicechat/internal/log"
	"github.com/teslashibe/go-voicechat/pkg/capture"
	"github.com/teslashibe/go-voicechat/pkg/client"
	"github.com/teslashibe/go-voicechat/pkg/conversation"
	"github.com/teslashibe/go-voicechat/pkg/session"
)

type options struct {
	server  string
	record  string
	mic     bool
	speak   string
	voice   string
	voices  bool
	out     string
	player  string
	watch   string
	history int
	logger  *slog.Logger
}

func main() {
	opts := parseFlags()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, os.Stdin, os.Stdout, os.Stderr); err != nil && !errors.Is(err, context.Canceled) {
		opts.logger.Error("voicechat failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var o options
	server := os.Getenv("VOICECHAT_URL")
	if server == "" {
		server = "http://localhost:3000"
	}

	flag.StringVar(&o.server, "server", server, "Gateway base URL (env VOICECHAT_URL)")
	flag.StringVar(&o.record, "record", "", "Send an audio file as a voice turn")
	flag.BoolVar(&o.mic, "mic", false, "Record one voice turn from the microphone; Enter stops (needs -tags portaudio)")
	flag.StringVar(&o.speak, "speak", "", "Synthesize text without chatting")
	flag.StringVar(&o.voice, "voice", "", "Voice ID or preset name for replies")
	flag.BoolVar(&o.voices, "voices", false, "List available voices and exit")
	flag.StringVar(&o.out, "out", "", "Write each spoken reply to this file")
	flag.StringVar(&o.player, "player", "", "Command that plays a reply file, e.g. \"mpv --no-video\"")
	flag.StringVar(&o.watch, "watch", "", "Print events of a server session and exit when it ends")
	flag.IntVar(&o.history, "history", conversation.DefaultHistoryWindow, "Turns of context sent with each message")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := "warn"
	if *debug {
		level = "debug"
	}
	// Logs go to stderr so stdout carries only the conversation.
	o.logger = vlog.New(os.Stderr, level, "")
	return o
}

func run(ctx context.Context, o options, in io.Reader, out, errOut io.Writer) error {
	c := client.New(o.server, client.WithLogger(o.logger))

	switch {
	case o.voices:
		return listVoices(ctx, c, out)
	case o.watch != "":
		return watch(ctx, c, o, out)
	}

	orch := newOrchestrator(c, o, errOut)

	switch {
	case o.speak != "":
		_, err := orch.Speak(ctx, o.speak, o.voice)
		return err
	case o.record != "":
		return voiceTurn(ctx, orch, &capture.FileDevice{Path: o.record}, nil, out, o.logger)
	case o.mic:
		return voiceTurn(ctx, orch, capture.NewMicrophone(0), nextLine(in, out), out, o.logger)
	default:
		return chatLoop(ctx, orch, in, out, o.logger)
	}
}

func newOrchestrator(c *client.Client, o options, errOut io.Writer) *conversation.Orchestrator {
	var players conversation.MultiPlayer
	if o.out != "" {
		players = append(players, conversation.FilePlayer{Path: o.out})
	}
	if o.player != "" {
		players = append(players, conversation.CommandPlayer{Command: o.player})
	}

	opts := []conversation.Option{
		conversation.WithTranscriber(c),
		conversation.WithSynthesizer(c),
		conversation.WithHistoryWindow(o.history),
		conversation.WithVoice(o.voice),
		conversation.WithLogger(o.logger),
		conversation.WithNotifier(conversation.NotifierFunc(func(n conversation.Notice) {
			fmt.Fprintf(errOut, "Error: %s\n", n.Message)
			if n.Details != "" {
				fmt.Fprintf(errOut, "Details: %s\n", n.Details)
			}
		})),
	}
	if len(players) > 0 {
		opts = append(opts, conversation.WithPlayer(players))
	}
	return conversation.New(c, opts...)
}

func listVoices(ctx context.Context, c *client.Client, out io.Writer) error {
	voices, err := c.Voices(ctx)
	if err != nil {
		return err
	}
	for _, v := range voices {
		fmt.Fprintf(out, "%s\t%s\t%s\n", v.VoiceID, v.Name, v.Category)
	}
	return nil
}

// watch prints a server session's events. Pushed reply audio is saved to
// -out when set.
func watch(ctx context.Context, c *client.Client, o options, out io.Writer) error {
	return c.WatchSession(ctx, o.watch, func(e session.Event) {
		switch {
		case e.Type == session.EventAudio:
			fmt.Fprintf(out, "audio %d bytes\n", len(e.Audio))
			if o.out != "" {
				p := conversation.FilePlayer{Path: o.out}
				if err := p.Play(ctx, &conversation.Speech{Audio: e.Audio}); err != nil {
					o.logger.Warn("saving audio", "error", err)
				}
			}
		case e.Notice != nil:
			fmt.Fprintf(out, "! %s: %s %s\n", e.Notice.Stage, e.Notice.Message, e.Notice.Details)
		case e.State != nil:
			st := e.State
			fmt.Fprintf(out, "state turns=%d recording=%t transcribing=%t generating=%t\n",
				len(st.Transcript), st.Recording, st.Transcribing, st.Generating)
		}
	})
}

// voiceTurn records from dev through the capture controller and sends the
// result as one turn. Once recording has started, until supplies the stop
// signal; a nil until records until the device runs dry.
func voiceTurn(ctx context.Context, orch *conversation.Orchestrator, dev capture.Device, until func() <-chan struct{}, out io.Writer, logger *slog.Logger) error {
	rec := capture.NewRecorder(dev, capture.WithLogger(logger))
	if err := rec.Start(ctx); err != nil {
		if errors.Is(err, capture.ErrPermissionDenied) {
			return fmt.Errorf("audio input refused, check permissions: %w", err)
		}
		return err
	}

	var stop <-chan struct{}
	if until != nil {
		stop = until()
	}
	select {
	case <-stop:
	case <-rec.Done():
	case <-ctx.Done():
	}
	blob, err := rec.Stop()
	if err != nil {
		return err
	}

	res, err := orch.RunAudio(ctx, blob)
	if err != nil {
		if errors.Is(err, conversation.ErrEmptyUtterance) {
			fmt.Fprintln(out, "(no speech detected)")
			return nil
		}
		return err
	}
	printResult(out, res)
	return nil
}

// nextLine stops a recording once a line is read from in.
func nextLine(in io.Reader, out io.Writer) func() <-chan struct{} {
	return func() <-chan struct{} {
		fmt.Fprintln(out, "(recording, press Enter to stop)")
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = bufio.NewReader(in).ReadString('\n')
		}()
		return done
	}
}

// chatLoop runs one turn per input line. "/clear" wipes the transcript,
// "/record FILE" sends a file as a voice turn and "/mic" records from the
// microphone until the next line.
func chatLoop(ctx context.Context, orch *conversation.Orchestrator, in io.Reader, out io.Writer, logger *slog.Logger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "":
			continue
		case line == "/clear":
			if err := orch.Clear(); err != nil {
				logger.Warn("clear failed", "error", err)
				continue
			}
			fmt.Fprintln(out, "(transcript cleared)")
			continue
		case strings.HasPrefix(line, "/record "):
			dev := &capture.FileDevice{Path: strings.TrimSpace(strings.TrimPrefix(line, "/record "))}
			if err := voiceTurn(ctx, orch, dev, nil, out, logger); err != nil {
				logger.Warn("voice turn failed", "error", err)
			}
			continue
		case line == "/mic":
			until := func() <-chan struct{} {
				fmt.Fprintln(out, "(recording, press Enter to stop)")
				stop := make(chan struct{})
				go func() {
					defer close(stop)
					select {
					case <-lines:
					case <-ctx.Done():
					}
				}()
				return stop
			}
			if err := voiceTurn(ctx, orch, capture.NewMicrophone(0), until, out, logger); err != nil {
				logger.Warn("voice turn failed", "error", err)
			}
			continue
		}

		// Failures were already reported by the notifier.
		res, err := orch.RunText(ctx, line)
		if err != nil {
			continue
		}
		printResult(out, res)
	}
}

func printResult(out io.Writer, res *conversation.Result) {
	fmt.Fprintf(out, "you: %s\n", res.User.Text)
	fmt.Fprintf(out, "assistant: %s\n", res.Assistant.Text)
}
