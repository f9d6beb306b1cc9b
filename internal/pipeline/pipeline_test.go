package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bowerhall/courier/internal/command"
	"github.com/bowerhall/courier/internal/conversation"
	"github.com/bowerhall/courier/internal/llm"
	"github.com/bowerhall/courier/internal/media"
	"github.com/bowerhall/courier/internal/notify"
	"github.com/bowerhall/courier/internal/shell"
	"github.com/bowerhall/courier/internal/speech"
	"github.com/bowerhall/courier/internal/transport"
	"github.com/bowerhall/courier/internal/video"
)

func textMsg(text string) transport.Message {
	return transport.Message{ID: "m1", Sender: "alice", Kind: transport.KindText, Text: text}
}

func voiceMsg() transport.Message {
	return transport.Message{
		ID:     "m2",
		Sender: "alice",
		Kind:   transport.KindVoice,
		Media:  &transport.MediaRef{ID: "v1", MimeType: "audio/ogg"},
	}
}

func assertPresence(t *testing.T, m *fakeMessenger, first transport.Presence) {
	t.Helper()
	got := m.presences()
	want := []transport.Presence{first, transport.PresencePaused}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("presence mismatch (-want +got):\n%s", diff)
	}
}

func TestConversationalUsesHistory(t *testing.T) {
	f := newFixture(nil)
	f.hist.Append("alice", conversation.Turn{Role: conversation.RoleUser, Text: "hi"})
	f.hist.Append("alice", conversation.Turn{Role: conversation.RoleAssistant, Text: "hey"})

	if err := f.exec.Conversational(context.Background(), textMsg("how are you?")); err != nil {
		t.Fatalf("Conversational: %v", err)
	}

	want := []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hey"},
		{Role: llm.RoleUser, Content: "how are you?"},
	}
	if diff := cmp.Diff(want, f.ai.messages); diff != "" {
		t.Errorf("model input mismatch (-want +got):\n%s", diff)
	}

	if got := f.msgr.texts(); len(got) != 1 || got[0] != "hello back" {
		t.Errorf("expected one reply, got %q", got)
	}

	turns := f.hist.Read("alice")
	if len(turns) != 4 || turns[3].Text != "hello back" || turns[2].Text != "how are you?" {
		t.Errorf("history not updated: %+v", turns)
	}

	assertPresence(t, f.msgr, transport.PresenceComposing)
}

func TestConversationalFailureSendsSingleApology(t *testing.T) {
	f := newFixture(nil)
	f.ai.err = &llm.Error{Kind: llm.KindQuota, Err: errBoom}

	err := f.exec.Conversational(context.Background(), textMsg("hello"))
	if !llm.IsKind(err, llm.KindQuota) {
		t.Fatalf("expected quota error, got %v", err)
	}

	got := f.msgr.texts()
	if len(got) != 1 || !strings.HasPrefix(got[0], "Sorry") {
		t.Errorf("expected a single apology, got %q", got)
	}

	if turns := f.hist.Read("alice"); len(turns) != 1 {
		t.Errorf("failed exchange should leave only the user turn, got %+v", turns)
	}

	assertPresence(t, f.msgr, transport.PresenceComposing)
}

func TestConversationalLongTextSendsNotice(t *testing.T) {
	f := newFixture(nil)

	if err := f.exec.Conversational(context.Background(), textMsg(strings.Repeat("a", 300))); err != nil {
		t.Fatalf("Conversational: %v", err)
	}

	got := f.msgr.texts()
	if len(got) != 2 || got[0] != workingOnIt || got[1] != "hello back" {
		t.Errorf("expected notice then reply, got %q", got)
	}
}

func TestConversationalCancelledStillPauses(t *testing.T) {
	f := newFixture(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.exec.Conversational(ctx, textMsg("hello"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	got := f.msgr.presences()
	if len(got) == 0 || got[len(got)-1] != transport.PresencePaused {
		t.Errorf("expected paused last, got %v", got)
	}

	if texts := f.msgr.texts(); len(texts) != 1 || !strings.HasPrefix(texts[0], "Sorry") {
		t.Errorf("cancelled request should still get one apology, got %q", texts)
	}
	if f.ai.calls != 0 {
		t.Error("model should not be called after cancellation")
	}
}

func TestConversationalRecoversAfterFailedExchange(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := f.exec.Conversational(ctx, textMsg("hello")); err != nil {
			t.Fatalf("exchange %d: %v", i, err)
		}
	}

	f.ai.err = &llm.Error{Kind: llm.KindUnavailable, Err: errBoom}
	if err := f.exec.Conversational(ctx, textMsg("hello")); err == nil {
		t.Fatal("expected failed exchange")
	}

	f.ai.err = nil
	if err := f.exec.Conversational(ctx, textMsg("still there?")); err != nil {
		t.Fatalf("exchange after failure: %v", err)
	}

	msgs := f.ai.messages
	if len(msgs) == 0 || msgs[0].Role != llm.RoleUser {
		t.Fatalf("conversation must open with a user turn, got %+v", msgs)
	}
	if last := msgs[len(msgs)-1]; last.Role != llm.RoleUser || last.Content != "still there?" {
		t.Errorf("prompt should be last, got %+v", last)
	}
}

func TestToMessagesDropsLeadingAssistantTurns(t *testing.T) {
	turns := []conversation.Turn{
		{Role: conversation.RoleAssistant, Text: "stale"},
		{Role: conversation.RoleUser, Text: "hi"},
		{Role: conversation.RoleAssistant, Text: "hey"},
	}

	want := []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hey"},
	}
	if diff := cmp.Diff(want, toMessages(turns)); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestVoiceEmptyAudio(t *testing.T) {
	tc := &fakeTranscoder{}
	f := newFixture(func(d *Deps) {
		d.Transcoder = tc
		d.Transcriber = &fakeTranscriber{text: "unused"}
	})
	f.msgr.media = []byte{}

	err := f.exec.Voice(context.Background(), voiceMsg())

	var terr *speech.TranscriptionError
	if !errors.As(err, &terr) || !errors.Is(err, speech.ErrBadAudio) {
		t.Fatalf("expected bad audio transcription error, got %v", err)
	}
	if tc.called {
		t.Error("transcoder should not run on empty audio")
	}
	if f.ai.calls != 0 {
		t.Error("model should not be called")
	}

	got := f.msgr.texts()
	if len(got) != 1 || !strings.Contains(got[0], "couldn't make out") {
		t.Errorf("expected one bad-audio apology, got %q", got)
	}

	assertPresence(t, f.msgr, transport.PresenceRecording)
}

func TestVoiceIsStateless(t *testing.T) {
	f := newFixture(func(d *Deps) {
		d.Transcoder = &fakeTranscoder{}
		d.Transcriber = &fakeTranscriber{text: "what time is it"}
		d.Synthesizer = &fakeSynthesizer{}
	})
	f.msgr.media = []byte("opus")
	f.hist.Append("alice", conversation.Turn{Role: conversation.RoleUser, Text: "earlier"})

	if err := f.exec.Voice(context.Background(), voiceMsg()); err != nil {
		t.Fatalf("Voice: %v", err)
	}

	want := []llm.Message{{Role: llm.RoleUser, Content: "what time is it"}}
	if diff := cmp.Diff(want, f.ai.messages); diff != "" {
		t.Errorf("voice should not carry history (-want +got):\n%s", diff)
	}
	if n := f.hist.Len("alice"); n != 1 {
		t.Errorf("voice should not touch history, got %d turns", n)
	}

	reply := f.msgr.last()
	if reply.Kind() != transport.KindVoice || !reply.PTT {
		t.Errorf("expected a voice note reply, got %+v", reply)
	}

	assertPresence(t, f.msgr, transport.PresenceRecording)
}

func TestVoiceSynthesisFailureFallsBackToText(t *testing.T) {
	f := newFixture(func(d *Deps) {
		d.Transcoder = &fakeTranscoder{}
		d.Transcriber = &fakeTranscriber{text: "hi"}
		d.Synthesizer = &fakeSynthesizer{err: errBoom}
	})
	f.msgr.media = []byte("opus")

	if err := f.exec.Voice(context.Background(), voiceMsg()); err != nil {
		t.Fatalf("Voice: %v", err)
	}

	if got := f.msgr.texts(); len(got) != 1 || got[0] != "hello back" {
		t.Errorf("expected text fallback, got %q", got)
	}
}

func TestVoiceDecodeFailureIsBadAudio(t *testing.T) {
	f := newFixture(func(d *Deps) {
		d.Transcoder = &fakeTranscoder{err: media.ErrDecode}
		d.Transcriber = &fakeTranscriber{text: "hi"}
	})
	f.msgr.media = []byte("garbage")

	err := f.exec.Voice(context.Background(), voiceMsg())
	if !errors.Is(err, speech.ErrBadAudio) {
		t.Errorf("expected bad audio, got %v", err)
	}
}

func TestVoiceMissingTranscoderIsUnavailable(t *testing.T) {
	f := newFixture(func(d *Deps) {
		d.Transcoder = &fakeTranscoder{err: fmt.Errorf("%w: exec: no such file", media.ErrUnavailable)}
		d.Transcriber = &fakeTranscriber{text: "hi"}
	})
	f.msgr.media = []byte("opus")

	err := f.exec.Voice(context.Background(), voiceMsg())
	if !errors.Is(err, speech.ErrUnavailable) || errors.Is(err, speech.ErrBadAudio) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if got := f.msgr.texts(); len(got) != 1 || !strings.Contains(got[0], "send text instead") {
		t.Errorf("unexpected apology %q", got)
	}
}

func TestVoiceTranscriberUnavailable(t *testing.T) {
	f := newFixture(func(d *Deps) {
		d.Transcoder = &fakeTranscoder{}
		d.Transcriber = &fakeTranscriber{err: errBoom}
	})
	f.msgr.media = []byte("opus")

	err := f.exec.Voice(context.Background(), voiceMsg())
	if !errors.Is(err, speech.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if got := f.msgr.texts(); len(got) != 1 || !strings.Contains(got[0], "send text instead") {
		t.Errorf("unexpected apology %q", got)
	}
}

func TestImageUsesCaption(t *testing.T) {
	f := newFixture(nil)
	f.msgr.media = []byte("jpeg")

	msg := transport.Message{
		Sender:  "alice",
		Kind:    transport.KindImage,
		Caption: "what breed is this?",
		Media:   &transport.MediaRef{ID: "i1", MimeType: "image/png"},
	}
	if err := f.exec.Image(context.Background(), msg); err != nil {
		t.Fatalf("Image: %v", err)
	}

	if len(f.ai.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(f.ai.messages))
	}
	got := f.ai.messages[0]
	if got.Content != "what breed is this?" || len(got.Images) != 1 || got.Images[0].MimeType != "image/png" {
		t.Errorf("unexpected model input %+v", got)
	}
}

func TestImageDownloadFailure(t *testing.T) {
	f := newFixture(nil)
	f.msgr.dlErr = errBoom

	msg := transport.Message{Sender: "alice", Kind: transport.KindImage, Media: &transport.MediaRef{ID: "i1"}}
	if err := f.exec.Image(context.Background(), msg); !errors.Is(err, errBoom) {
		t.Errorf("expected download error, got %v", err)
	}
	if got := f.msgr.texts(); len(got) != 1 || got[0] != downloadApology {
		t.Errorf("unexpected replies %q", got)
	}
}

func TestSendFailureSurfacesConnectionLoss(t *testing.T) {
	f := newFixture(nil)
	f.msgr.sendErr = transport.ErrNotConnected

	err := f.exec.Conversational(context.Background(), textMsg("hello"))
	if !errors.Is(err, transport.ErrConnectionLost) {
		t.Errorf("expected connection loss, got %v", err)
	}

	got := f.msgr.presences()
	if len(got) == 0 || got[len(got)-1] != transport.PresencePaused {
		t.Errorf("expected paused last, got %v", got)
	}
}

func TestSendPublishesOutbound(t *testing.T) {
	hub := notify.NewHub(4)
	sub := hub.Subscribe()
	defer sub.Close()

	f := newFixture(func(d *Deps) { d.Events = hub })

	if err := f.exec.Conversational(context.Background(), textMsg("hello")); err != nil {
		t.Fatalf("Conversational: %v", err)
	}

	select {
	case ev := <-sub.C:
		data, ok := ev.Data.(notify.MessageData)
		if ev.Type != notify.EventMessageExchanged || !ok || data.Direction != "out" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestSystemScreenshot(t *testing.T) {
	f := newFixture(func(d *Deps) { d.Screen = &fakeScreen{} })

	cmd := command.Command{Intent: command.IntentScreenshot}
	if err := f.exec.System(context.Background(), textMsg("/s screenshot"), cmd, nil); err != nil {
		t.Fatalf("System: %v", err)
	}

	got := f.msgr.texts()
	if len(got) != 2 {
		t.Fatalf("expected ack and result, got %q", got)
	}

	final := f.msgr.last()
	if final.Kind() != transport.KindImage || !strings.HasPrefix(final.Caption, okMark) {
		t.Errorf("unexpected final message %+v", final)
	}

	assertPresence(t, f.msgr, transport.PresenceComposing)
}

func TestSystemScreenshotFailure(t *testing.T) {
	f := newFixture(func(d *Deps) { d.Screen = &fakeScreen{err: media.ErrNoCaptureTool} })

	cmd := command.Command{Intent: command.IntentScreenshot}
	if err := f.exec.System(context.Background(), textMsg("/s screenshot"), cmd, nil); !errors.Is(err, media.ErrNoCaptureTool) {
		t.Errorf("expected capture error, got %v", err)
	}
	if final := f.msgr.last().Text; !strings.HasPrefix(final, failMark) {
		t.Errorf("expected failure mark, got %q", final)
	}
}

func TestSystemSearch(t *testing.T) {
	searcher := &fakeSearcher{}
	for i := range 7 {
		id := string(rune('a' + i))
		searcher.results = append(searcher.results, video.Result{Title: "T" + id, ID: id, Channel: "C", URL: video.WatchURL(id)})
	}
	f := newFixture(func(d *Deps) { d.Videos = searcher })

	cmd := command.Command{Intent: command.IntentSearchVideo, Argument: "lofi"}
	if err := f.exec.System(context.Background(), textMsg("/s search youtube for lofi"), cmd, nil); err != nil {
		t.Fatalf("System: %v", err)
	}

	if searcher.max[0] != DefaultSearchResults {
		t.Errorf("expected max %d, got %d", DefaultSearchResults, searcher.max[0])
	}

	final := f.msgr.last().Text
	if !strings.HasPrefix(final, okMark) || !strings.Contains(final, "5. Te") || strings.Contains(final, "6. ") {
		t.Errorf("unexpected listing:\n%s", final)
	}
}

func TestSystemSearchNoResults(t *testing.T) {
	f := newFixture(func(d *Deps) { d.Videos = &fakeSearcher{} })

	cmd := command.Command{Intent: command.IntentSearchVideo, Argument: "zzz"}
	if err := f.exec.System(context.Background(), textMsg("/s youtube zzz"), cmd, nil); err != nil {
		t.Fatalf("no results is not an error: %v", err)
	}
	if final := f.msgr.last().Text; !strings.Contains(final, "No videos found") {
		t.Errorf("unexpected reply %q", final)
	}
}

func TestSystemPlayVideo(t *testing.T) {
	player := &fakePlayer{}
	f := newFixture(func(d *Deps) {
		d.Videos = &fakeSearcher{results: []video.Result{{Title: "Song", ID: "x1", Channel: "Band", URL: video.WatchURL("x1")}}}
		d.Player = player
		d.Screen = &fakeScreen{}
	})

	cmd := command.Command{Intent: command.IntentPlayVideo, Argument: "song"}
	if err := f.exec.System(context.Background(), textMsg("/s play song video"), cmd, nil); err != nil {
		t.Fatalf("System: %v", err)
	}

	if diff := cmp.Diff([]string{video.WatchURL("x1")}, player.opened); diff != "" {
		t.Errorf("opened mismatch (-want +got):\n%s", diff)
	}

	final := f.msgr.last()
	if final.Kind() != transport.KindImage || !strings.Contains(final.Caption, "Now playing: Song") {
		t.Errorf("unexpected final %+v", final)
	}
}

func TestSystemPlayCaptureFailureStillReports(t *testing.T) {
	f := newFixture(func(d *Deps) {
		d.Videos = &fakeSearcher{results: []video.Result{{Title: "Song", ID: "x1", URL: video.WatchURL("x1")}}}
		d.Player = &fakePlayer{}
		d.Screen = &fakeScreen{err: errBoom}
	})

	cmd := command.Command{Intent: command.IntentPlayVideo, Argument: "song"}
	if err := f.exec.System(context.Background(), textMsg("/s play song video"), cmd, nil); err != nil {
		t.Fatalf("System: %v", err)
	}
	if final := f.msgr.last().Text; !strings.HasPrefix(final, okMark+" Now playing") {
		t.Errorf("unexpected final %q", final)
	}
}

func TestSystemUsage(t *testing.T) {
	tests := []struct {
		name string
		cmd  command.Command
		err  error
		want string
	}{
		{"missing search argument", command.Command{Intent: command.IntentSearchVideo}, command.ErrMissingArgument, "what to search for"},
		{"missing play argument", command.Command{Intent: command.IntentPlayVideo}, command.ErrMissingArgument, "what to play"},
		{"unknown", command.Command{Intent: command.IntentUnknown}, nil, "/s screenshot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)

			if err := f.exec.System(context.Background(), textMsg("/s "), tt.cmd, tt.err); err != nil {
				t.Fatalf("System: %v", err)
			}

			got := f.msgr.texts()
			if len(got) != 1 || !strings.HasPrefix(got[0], failMark) || !strings.Contains(got[0], tt.want) {
				t.Errorf("unexpected usage reply %q", got)
			}
			assertPresence(t, f.msgr, transport.PresenceComposing)
		})
	}
}

func TestSystemShell(t *testing.T) {
	runner := &fakeRunner{output: "file.txt"}
	f := newFixture(func(d *Deps) { d.Shell = runner })
	f.ai.reply = "```bash\nls -la\n```"

	cmd := command.Command{Intent: command.IntentShellGenerate, Argument: "list files"}
	if err := f.exec.System(context.Background(), textMsg("/s list files"), cmd, nil); err != nil {
		t.Fatalf("System: %v", err)
	}

	if diff := cmp.Diff([]string{"ls -la"}, runner.ran); diff != "" {
		t.Errorf("ran mismatch (-want +got):\n%s", diff)
	}
	if final := f.msgr.last().Text; final != okMark+" $ ls -la\n\nfile.txt" {
		t.Errorf("unexpected final %q", final)
	}
	if !strings.Contains(f.ai.messages[0].Content, shellNote) {
		t.Error("shell note missing from prompt")
	}
}

func TestSystemShellExecFailure(t *testing.T) {
	runner := &fakeRunner{err: &shell.ExecError{Command: "false", ExitCode: 1}}
	f := newFixture(func(d *Deps) { d.Shell = runner })
	f.ai.reply = "false"

	cmd := command.Command{Intent: command.IntentShellGenerate, Argument: "fail"}
	if err := f.exec.System(context.Background(), textMsg("/s fail"), cmd, nil); err != nil {
		t.Fatalf("System: %v", err)
	}
	if final := f.msgr.last().Text; final != failMark+" $ false\n\nexit status 1" {
		t.Errorf("unexpected final %q", final)
	}
}

func TestSystemShellPolicyRejects(t *testing.T) {
	runner := &fakeRunner{}
	f := newFixture(func(d *Deps) {
		d.Shell = runner
		d.Policy = shell.NewPolicy(shell.ModeAllowlist, []string{"ls"})
	})
	f.ai.reply = "rm -rf /"

	cmd := command.Command{Intent: command.IntentShellGenerate, Argument: "clean up"}
	err := f.exec.System(context.Background(), textMsg("/s clean up"), cmd, nil)
	if !errors.Is(err, shell.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
	if len(runner.ran) != 0 {
		t.Errorf("nothing should run, got %v", runner.ran)
	}
	if final := f.msgr.last().Text; !strings.HasPrefix(final, failMark) {
		t.Errorf("unexpected final %q", final)
	}
}

func TestSystemShellConfirmation(t *testing.T) {
	tests := []struct {
		name    string
		approve bool
		wantRan int
		prefix  string
	}{
		{"approved", true, 1, okMark},
		{"denied", false, 0, failMark + " Cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			approvals := newApprovals()
			runner := &fakeRunner{output: "up 3 days"}
			f := newFixture(func(d *Deps) {
				d.Shell = runner
				d.Policy = shell.NewPolicy(shell.ModeConfirm, nil)
				d.Approvals = approvals
			})
			f.ai.reply = "uptime"

			done := make(chan error, 1)
			go func() {
				cmd := command.Command{Intent: command.IntentShellGenerate, Argument: "uptime"}
				done <- f.exec.System(context.Background(), textMsg("/s uptime"), cmd, nil)
			}()

			deadline := time.Now().Add(time.Second)
			for {
				if p, ok := approvals.PendingFor("alice"); ok {
					if err := approvals.Resolve(p.ID, tt.approve, "alice"); err != nil {
						t.Fatalf("resolve: %v", err)
					}
					break
				}
				if time.Now().After(deadline) {
					t.Fatal("approval never requested")
				}
				time.Sleep(5 * time.Millisecond)
			}

			if err := <-done; err != nil {
				t.Fatalf("System: %v", err)
			}
			if len(runner.ran) != tt.wantRan {
				t.Errorf("expected %d runs, got %v", tt.wantRan, runner.ran)
			}
			if final := f.msgr.last().Text; !strings.HasPrefix(final, tt.prefix) {
				t.Errorf("unexpected final %q", final)
			}
		})
	}
}

func TestSystemNotConfigured(t *testing.T) {
	f := newFixture(nil)

	cmd := command.Command{Intent: command.IntentSearchVideo, Argument: "x"}
	if err := f.exec.System(context.Background(), textMsg("/s youtube x"), cmd, nil); !errors.Is(err, errNotConfigured) {
		t.Errorf("expected errNotConfigured, got %v", err)
	}
	if final := f.msgr.last().Text; !strings.Contains(final, "not available") {
		t.Errorf("unexpected final %q", final)
	}
}
