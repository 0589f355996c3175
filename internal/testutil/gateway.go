package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/epinadev/claude-remote-ui/internal/model"
)

// SentText records one FakeGateway.Send call.
type SentText struct {
	PaneID string
	Text   string
}

// FakeGateway is an in-memory tmux: panes exist while present in Live.
type FakeGateway struct {
	mu       sync.Mutex
	live     map[string]model.PaneTarget
	output   map[string]string
	Sent     []SentText
	Spawned  []string
	ListErr  error
	SendErr  error
	nextPane int
}

func NewFakeGateway(panes ...model.PaneTarget) *FakeGateway {
	g := &FakeGateway{
		live:     make(map[string]model.PaneTarget),
		output:   make(map[string]string),
		nextPane: 100,
	}
	for _, p := range panes {
		g.live[p.PaneID] = p
	}
	return g
}

func (g *FakeGateway) SetOutput(paneID, text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.output[paneID] = text
}

func (g *FakeGateway) Kill(paneID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.live, paneID)
}

func (g *FakeGateway) ListPanes(context.Context) ([]model.PaneTarget, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ListErr != nil {
		return nil, g.ListErr
	}
	out := make([]model.PaneTarget, 0, len(g.live))
	for _, p := range g.live {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaneID < out[j].PaneID })
	return out, nil
}

func (g *FakeGateway) Capture(_ context.Context, target model.PaneTarget, _ int) (model.CapturedOutput, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.live[target.PaneID]; !ok {
		return model.CapturedOutput{Target: target}, nil
	}
	return model.CapturedOutput{Target: target, Text: g.output[target.PaneID], Exists: true}, nil
}

func (g *FakeGateway) Send(_ context.Context, target model.PaneTarget, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SendErr != nil {
		return g.SendErr
	}
	if _, ok := g.live[target.PaneID]; !ok {
		return fmt.Errorf("send to %s: %w", target.PaneID, model.ErrPaneNotFound)
	}
	g.Sent = append(g.Sent, SentText{PaneID: target.PaneID, Text: text})
	return nil
}

func (g *FakeGateway) IsAlive(_ context.Context, target model.PaneTarget) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.live[target.PaneID]
	return ok
}

func (g *FakeGateway) Describe(_ context.Context, paneID string) (model.PaneTarget, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.live[paneID]
	if !ok {
		return model.PaneTarget{}, fmt.Errorf("describe %s: %w", paneID, model.ErrPaneNotFound)
	}
	return p, nil
}

func (g *FakeGateway) Spawn(_ context.Context, windowName, command string) (model.PaneTarget, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextPane++
	p := model.PaneTarget{PaneID: fmt.Sprintf("%%%d", g.nextPane), SessionName: "main", WindowName: windowName}
	g.live[p.PaneID] = p
	g.Spawned = append(g.Spawned, command)
	return p, nil
}

// SentTexts returns a copy of the recorded sends.
func (g *FakeGateway) SentTexts() []SentText {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]SentText(nil), g.Sent...)
}
