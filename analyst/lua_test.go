package analyst

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tfkr-ae/furlong/domain"
)

func TestNewLuaResponder(t *testing.T) {
	t.Run("should reject scripts without respond", func(t *testing.T) {
		_, err := NewLuaResponder(`x = 1`, nil, nil)
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})

	t.Run("should reject invalid lua", func(t *testing.T) {
		_, err := NewLuaResponder(`function respond(`, nil, nil)
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})

	for _, global := range []string{"os", "io", "require", "dofile", "load"} {
		t.Run(global+" should be nil", func(t *testing.T) {
			responder, err := NewLuaResponder(`
				function respond(question, history)
					if `+global+` == nil then return "nil" end
					return "exists"
				end`, nil, nil)
			if err != nil {
				t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
			}

			got, _ := responder.Respond(context.Background(), "q", nil)
			if got != "nil" {
				t.Fatalf("\nwanted:\nnil\ngot:\n%s", got)
			}
		})
	}
}

func TestLuaResponder_Respond(t *testing.T) {
	ctx := context.Background()

	t.Run("should pass the question and history", func(t *testing.T) {
		responder, err := NewLuaResponder(`
			function respond(question, history)
				local last = history[#history]
				return furlong:upper(question) .. " after " .. #history .. " turns, last by " .. last.role
			end`, nil, nil)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		history := []*domain.ChatMessage{
			{Role: domain.RoleUser, Content: "hi"},
			{Role: domain.RoleAssistant, Content: "hello"},
		}
		got, err := responder.Respond(ctx, "who wins", history)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		want := "WHO WINS after 2 turns, last by assistant"
		if got != want {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", want, got)
		}
	})

	t.Run("should use the helper library", func(t *testing.T) {
		responder, err := NewLuaResponder(`
			function respond(question, history)
				furlong:log("answering", "debug")
				if furlong:contains(question, "ODDS") then
					return furlong:canned(question)
				end
				return "no idea"
			end`, nil, nil)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, _ := responder.Respond(ctx, "best odds?", nil)
		if !strings.Contains(got, "odds table") {
			t.Fatalf("\nwanted:\ncanned odds answer\ngot:\n%s", got)
		}
	})

	t.Run("should fall back when the script errors", func(t *testing.T) {
		responder, err := NewLuaResponder(`
			function respond(question, history)
				error("boom")
			end`, nil, nil)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := responder.Respond(ctx, "track rating?", nil)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if !strings.Contains(got, "track rating") {
			t.Fatalf("\nwanted:\ncanned track answer\ngot:\n%s", got)
		}
	})

	t.Run("should fall back when the script returns a non string", func(t *testing.T) {
		responder, _ := NewLuaResponder(`function respond(q, h) return 42 end`, nil, nil)

		got, _ := responder.Respond(ctx, "anything", nil)
		if got != defaultAnswer {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", defaultAnswer, got)
		}
	})

	t.Run("should stop on a cancelled context", func(t *testing.T) {
		responder, _ := NewLuaResponder(`function respond(q, h) return "x" end`, nil, nil)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := responder.Respond(cancelled, "q", nil); err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})

	spinning := `
		function respond(question, history)
			if question == "spin" then
				while true do end
			end
			return "ok " .. question
		end`

	t.Run("should stop a script that runs too long and keep serving", func(t *testing.T) {
		responder, err := NewLuaResponder(spinning, nil, nil)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		responder.timeout = 50 * time.Millisecond

		got, err := responder.Respond(ctx, "spin", nil)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if got != defaultAnswer {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", defaultAnswer, got)
		}

		got, err = responder.Respond(ctx, "cup", nil)
		if err != nil || got != "ok cup" {
			t.Fatalf("\nwanted:\nok cup\ngot:\n%s %v", got, err)
		}
	})

	t.Run("should stop a running script when the context ends", func(t *testing.T) {
		responder, _ := NewLuaResponder(spinning, nil, nil)

		short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		if _, err := responder.Respond(short, "spin", nil); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", context.DeadlineExceeded, err)
		}
	})
}
