package assistant

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rahul/homebot/internal/cleaning"
	"github.com/rahul/homebot/internal/intake"
	"github.com/rahul/homebot/internal/rewards"
)

// draft is a zone selection that has not been started yet.
type draft struct {
	mode  cleaning.Mode
	zones []string
}

var nothingToDo = Reply{Text: "Nothing to do right now. Send /clean to start."}

// cleanMenu shows the running session, or the zone picker when there is none.
func (a *Assistant) cleanMenu(ctx context.Context, chatID string) (Reply, error) {
	sess, found, err := a.engine.ActiveSession(ctx, chatID)
	if err != nil {
		return a.sessionError(err)
	}
	if found {
		return a.sessionView(sess, ""), nil
	}
	return a.wizard(chatID, ""), nil
}

func (a *Assistant) cleanCallback(ctx context.Context, chatID, data string) (Reply, error) {
	action, arg, _ := strings.Cut(data, ":")
	switch action {
	case "zone":
		if z, ok := a.engine.Catalog().Zone(arg); ok {
			a.toggleZone(chatID, z.ID)
		}
		return a.wizard(chatID, ""), nil
	case "mode":
		if mode, err := cleaning.ParseMode(arg); err == nil {
			a.setMode(chatID, mode)
		}
		return a.wizard(chatID, ""), nil
	case "go":
		return a.startSession(ctx, chatID)
	case "done":
		return a.completeTask(ctx, chatID)
	case "pause":
		return a.onActive(ctx, chatID, a.engine.Pause, "Paused. Tap Resume when you're ready.")
	case "resume":
		return a.onActive(ctx, chatID, a.engine.Resume, "Back at it.")
	case "abort":
		return a.onActive(ctx, chatID, a.engine.Abort, "")
	}
	return Reply{Text: "That button has expired."}, nil
}

// acknowledge maps a typed "done" / "pause" / "stop" onto the running session.
func (a *Assistant) acknowledge(ctx context.Context, chatID string, ack intake.Ack) (Reply, error) {
	switch ack {
	case intake.AckDone:
		return a.completeTask(ctx, chatID)
	case intake.AckPause:
		return a.onActive(ctx, chatID, a.engine.Pause, "Paused. Tap Resume when you're ready.")
	default:
		return a.onActive(ctx, chatID, a.engine.Abort, "")
	}
}

func (a *Assistant) startSession(ctx context.Context, chatID string) (Reply, error) {
	mode, zones := a.draftSelection(chatID)
	if len(zones) == 0 {
		return a.wizard(chatID, "Pick at least one zone first."), nil
	}
	sess, err := a.withRetry(ctx, func() (cleaning.Session, error) {
		return a.engine.Start(ctx, chatID, mode, zones)
	})
	if errors.Is(err, cleaning.ErrSessionAlreadyActive) {
		return a.cleanMenu(ctx, chatID)
	}
	if err != nil {
		return a.sessionError(err)
	}
	a.dropDraft(chatID)

	minutes := int(sess.Flow.EstimatedDuration().Round(time.Minute) / time.Minute)
	header := fmt.Sprintf("Let's go! %d tasks, about %d min.", sess.Flow.TotalTasks(), minutes)
	return a.sessionView(sess, header), nil
}

func (a *Assistant) completeTask(ctx context.Context, chatID string) (Reply, error) {
	sess, found, err := a.engine.ActiveSession(ctx, chatID)
	if err != nil {
		return a.sessionError(err)
	}
	if !found {
		return nothingToDo, nil
	}

	var task cleaning.TaskDescriptor
	next, err := a.withRetry(ctx, func() (cleaning.Session, error) {
		s, done, err := a.engine.CompleteTask(ctx, sess.ID)
		task = done
		return s, err
	})
	if err != nil {
		return a.sessionError(err)
	}
	header := ""
	if task.ID != "" {
		header = fmt.Sprintf("+%d pts for %q.", rewards.PointsFor(task), task.Label)
	}
	return a.sessionView(next, header), nil
}

// onActive applies op to the owner's open session and renders the result.
func (a *Assistant) onActive(ctx context.Context, chatID string, op func(context.Context, string) (cleaning.Session, error), header string) (Reply, error) {
	sess, found, err := a.engine.ActiveSession(ctx, chatID)
	if err != nil {
		return a.sessionError(err)
	}
	if !found {
		return nothingToDo, nil
	}
	next, err := a.withRetry(ctx, func() (cleaning.Session, error) {
		return op(ctx, sess.ID)
	})
	if err != nil {
		return a.sessionError(err)
	}
	return a.sessionView(next, header), nil
}

// withRetry repeats op once after busyRetry when the session was busy.
func (a *Assistant) withRetry(ctx context.Context, op func() (cleaning.Session, error)) (cleaning.Session, error) {
	sess, err := op()
	if !cleaning.Retryable(err) {
		return sess, err
	}
	timer := time.NewTimer(a.busyRetry)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return sess, err
	case <-timer.C:
	}
	return op()
}

// sessionError turns engine errors into something the user can act on. Only
// store failures and unexpected errors are returned to the gateway.
func (a *Assistant) sessionError(err error) (Reply, error) {
	switch {
	case errors.Is(err, cleaning.ErrSessionNotFound):
		return nothingToDo, nil
	case errors.Is(err, cleaning.ErrSessionTerminal):
		return Reply{Text: "That session is already finished. Send /clean for a new one."}, nil
	case errors.Is(err, cleaning.ErrSessionNotActive):
		return Reply{
			Text:    "The session is paused. Tap Resume to continue.",
			Buttons: [][]Button{{{Text: "▶️ Resume", Data: "clean:resume"}}},
		}, nil
	case errors.Is(err, cleaning.ErrSessionNotPaused):
		return Reply{Text: "The session is already running."}, nil
	case errors.Is(err, cleaning.ErrSessionAlreadyActive):
		return Reply{Text: "A cleaning session is already in progress. Send /clean to see it."}, nil
	case errors.Is(err, cleaning.ErrSessionBusy):
		return Reply{Text: "Still saving your last step, try again in a moment."}, nil
	case errors.Is(err, cleaning.ErrNoZonesSelected):
		return Reply{Text: "Pick at least one zone first."}, nil
	case errors.Is(err, cleaning.ErrUnknownZone), errors.Is(err, cleaning.ErrDuplicateZone):
		return Reply{Text: "That zone selection doesn't work. Send /clean to start over."}, nil
	}
	return failedReply, err
}

func (a *Assistant) sessionView(sess cleaning.Session, header string) Reply {
	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	total := sess.Flow.TotalTasks()

	switch sess.Status {
	case cleaning.StatusCompleted:
		fmt.Fprintf(&b, "All done! %d tasks finished. 🎉", total)
		return Reply{Text: b.String()}
	case cleaning.StatusAborted:
		fmt.Fprintf(&b, "Stopped after %d of %d tasks. Send /clean when you want another go.", sess.Done(), total)
		return Reply{Text: b.String()}
	}

	task, _ := sess.Current()
	phase, _ := sess.CurrentPhase()
	if sess.Status == cleaning.StatusPaused {
		b.WriteString("Paused. ")
	}
	fmt.Fprintf(&b, "Step %d/%d (%s)\n👉 %s", sess.Done()+1, total, a.phaseLabel(phase), task.Label)
	if task.EstimatedSeconds > 0 {
		fmt.Fprintf(&b, ", about %d min", (task.EstimatedSeconds+59)/60)
	}

	if sess.Status == cleaning.StatusPaused {
		return Reply{Text: b.String(), Buttons: [][]Button{{
			{Text: "▶️ Resume", Data: "clean:resume"},
			{Text: "⏹ Stop", Data: "clean:abort"},
		}}}
	}
	return Reply{Text: b.String(), Buttons: [][]Button{
		{{Text: "✅ Done", Data: "clean:done"}},
		{{Text: "⏸ Pause", Data: "clean:pause"}, {Text: "⏹ Stop", Data: "clean:abort"}},
	}}
}

func (a *Assistant) phaseLabel(p cleaning.Phase) string {
	switch p.Kind {
	case cleaning.PhasePrep:
		return "Prep"
	case cleaning.PhaseGlobalBase:
		return "Whole home"
	case cleaning.PhaseZone:
		if z, ok := a.engine.Catalog().Zone(p.ZoneID); ok {
			return z.Label
		}
		return p.ZoneID
	case cleaning.PhaseFloors:
		return "Floors"
	case cleaning.PhaseFinish:
		return "Finish"
	}
	return string(p.Kind)
}

// wizard renders the zone and mode picker for the chat's draft.
func (a *Assistant) wizard(chatID, header string) Reply {
	mode, selected := a.draftSelection(chatID)

	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	b.WriteString("Which zones today? Tap to toggle, then Go.")

	var rows [][]Button
	var row []Button
	var labels []string
	for _, z := range a.engine.Catalog().Zones() {
		text := z.Label
		if slices.Contains(selected, z.ID) {
			text = "✓ " + text
		}
		row = append(row, Button{Text: text, Data: "clean:zone:" + z.ID})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	for _, id := range selected {
		if z, ok := a.engine.Catalog().Zone(id); ok {
			labels = append(labels, z.Label)
		}
	}
	if len(labels) > 0 {
		fmt.Fprintf(&b, "\nSelected: %s", strings.Join(labels, ", "))
	}
	fmt.Fprintf(&b, "\nMode: %s", mode)

	quick, deep := "Quick", "Deep"
	if mode == cleaning.ModeDeep {
		deep = "✓ " + deep
	} else {
		quick = "✓ " + quick
	}
	rows = append(rows,
		[]Button{{Text: quick, Data: "clean:mode:maintenance"}, {Text: deep, Data: "clean:mode:deep"}},
		[]Button{{Text: "🚀 Go", Data: "clean:go"}},
	)
	return Reply{Text: b.String(), Buttons: rows}
}

func (a *Assistant) draftFor(chatID string) *draft {
	d, ok := a.drafts[chatID]
	if !ok {
		d = &draft{mode: cleaning.ModeMaintenance}
		a.drafts[chatID] = d
	}
	return d
}

func (a *Assistant) toggleZone(chatID, zoneID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d := a.draftFor(chatID)
	if i := slices.Index(d.zones, zoneID); i >= 0 {
		d.zones = slices.Delete(d.zones, i, i+1)
		return
	}
	d.zones = append(d.zones, zoneID)
}

func (a *Assistant) setMode(chatID string, mode cleaning.Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.draftFor(chatID).mode = mode
}

func (a *Assistant) draftSelection(chatID string) (cleaning.Mode, []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.drafts[chatID]
	if !ok {
		return cleaning.ModeMaintenance, nil
	}
	return d.mode, slices.Clone(d.zones)
}

func (a *Assistant) dropDraft(chatID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.drafts, chatID)
}
