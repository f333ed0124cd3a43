package session

import (
	"context"
	"fmt"

	"github.com/rcliao/margin/internal/capture"
	"github.com/rcliao/margin/internal/model"
	"golang.org/x/net/html"
)

// Kind identifies an event delivered by the host.
type Kind int

const (
	DocumentOpened Kind = iota + 1
	DocumentRendered
	AnnotationCreated
	AnnotationEdited
	AnnotationDeleted
	DocumentClosed
	RecordFocused
	SourceRequested
)

var kindNames = map[Kind]string{
	DocumentOpened:    "document-opened",
	DocumentRendered:  "document-rendered",
	AnnotationCreated: "annotation-created",
	AnnotationEdited:  "annotation-edited",
	AnnotationDeleted: "annotation-deleted",
	DocumentClosed:    "document-closed",
	RecordFocused:     "record-focused",
	SourceRequested:   "source-requested",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is a host notification. Which fields matter depends on Kind.
type Event struct {
	Kind    Kind
	Doc     string
	ID      string
	Content string
	Capture capture.Result
	Tree    *html.Node
}

// Listener is told about every change to a document's record list. It
// receives its own copy.
type Listener interface {
	RecordsChanged(doc string, recs []model.Annotation)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(doc string, recs []model.Annotation)

func (f ListenerFunc) RecordsChanged(doc string, recs []model.Annotation) { f(doc, recs) }

// Notifier shows a transient message to the user.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

// Navigator moves the host's cursor to a position and scrolls it into view.
type Navigator interface {
	Reveal(doc string, pos model.Position) error
}

type handler func(ctx context.Context, ev Event) error

// handlers is the coordinator's state-transition table.
func (c *Coordinator) handlers() map[Kind]handler {
	return map[Kind]handler{
		DocumentOpened: func(ctx context.Context, ev Event) error {
			_, err := c.Open(ctx, ev.Doc)
			return err
		},
		DocumentRendered: func(ctx context.Context, ev Event) error {
			c.Rendered(ev.Doc, ev.Tree)
			return nil
		},
		AnnotationCreated: func(ctx context.Context, ev Event) error {
			res := ev.Capture
			if res.Doc == "" {
				res.Doc = ev.Doc
			}
			_, err := c.Create(ctx, res, ev.Content)
			return err
		},
		AnnotationEdited: func(ctx context.Context, ev Event) error {
			_, err := c.Edit(ctx, ev.Doc, ev.ID, ev.Content)
			return err
		},
		AnnotationDeleted: func(ctx context.Context, ev Event) error {
			return c.Delete(ctx, ev.Doc, ev.ID)
		},
		DocumentClosed: func(ctx context.Context, ev Event) error {
			c.Close(ev.Doc)
			return nil
		},
		RecordFocused: func(ctx context.Context, ev Event) error {
			return c.Focus(ev.Doc, ev.ID)
		},
		SourceRequested: func(ctx context.Context, ev Event) error {
			return c.JumpToSource(ctx, ev.Doc, ev.ID)
		},
	}
}

// Dispatch routes ev to its handler.
func (c *Coordinator) Dispatch(ctx context.Context, ev Event) error {
	h, ok := c.table[ev.Kind]
	if !ok {
		return fmt.Errorf("dispatch: unknown event %v", ev.Kind)
	}
	return h(ctx, ev)
}
