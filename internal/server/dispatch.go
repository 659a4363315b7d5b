// Package server decodes inbound client events and routes them to the
// room router, message lifecycle manager and event relay.
package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Tyrowin/chatgate/internal/chat"
	"github.com/Tyrowin/chatgate/internal/realtime"
)

// dispatch decodes one inbound frame and routes it. A failure is answered
// with an error event to this connection only; the connection stays open.
func (g *Gateway) dispatch(c *Client, raw []byte) {
	env, err := realtime.Decode(raw)
	if err != nil {
		g.replyError(c, "", fmt.Errorf("%w: %v", chat.ErrInvalidArgument, err))
		return
	}
	if err := g.handleEvent(g.ctx, c, env); err != nil {
		g.replyError(c, env.Event, err)
	}
}

func (g *Gateway) handleEvent(ctx context.Context, c *Client, env realtime.Envelope) error {
	switch env.Event {
	case realtime.EventConversationJoin:
		var p realtime.ConversationRef
		if err := decodeData(env.Data, &p); err != nil {
			return err
		}
		return g.joinConversation(ctx, c, p.ConversationID)

	case realtime.EventConversationLeave:
		var p realtime.ConversationRef
		if err := decodeData(env.Data, &p); err != nil {
			return err
		}
		if p.ConversationID == "" {
			return fmt.Errorf("%w: conversationId is required", chat.ErrInvalidArgument)
		}
		g.rooms.Leave(c, p.ConversationID)
		return nil

	case realtime.EventTypingStart, realtime.EventTypingStop:
		var p realtime.ConversationRef
		if err := decodeData(env.Data, &p); err != nil {
			return err
		}
		if env.Event == realtime.EventTypingStart {
			return g.relay.TypingStart(c, p.ConversationID)
		}
		return g.relay.TypingStop(c, p.ConversationID)

	case realtime.EventPresenceCheck:
		var p realtime.PresenceQuery
		if err := decodeData(env.Data, &p); err != nil {
			return err
		}
		return g.relay.PresenceCheck(ctx, c, p.TargetActorID)

	case realtime.EventMessageNew:
		var p realtime.NewMessage
		if err := decodeData(env.Data, &p); err != nil {
			return err
		}
		_, err := g.messages.Create(ctx, c.actorID, p.ConversationID, p.Text)
		return err

	case realtime.EventMessageEdit:
		var p realtime.MessageEdit
		if err := decodeData(env.Data, &p); err != nil {
			return err
		}
		_, err := g.messages.Edit(ctx, c.actorID, p.MessageID, p.Text)
		return err

	case realtime.EventMessageDelete:
		var p realtime.MessageRef
		if err := decodeData(env.Data, &p); err != nil {
			return err
		}
		_, err := g.messages.SoftDelete(ctx, c.actorID, p.MessageID)
		return err

	case realtime.EventConversationRead:
		var p realtime.ConversationRef
		if err := decodeData(env.Data, &p); err != nil {
			return err
		}
		_, err := g.messages.MarkConversationRead(ctx, c.actorID, p.ConversationID)
		return err

	default:
		return fmt.Errorf("%w: unknown event %q", chat.ErrInvalidArgument, env.Event)
	}
}

// joinConversation subscribes c to a conversation's room once the actor's
// membership is confirmed, and acknowledges the join.
func (g *Gateway) joinConversation(ctx context.Context, c *Client, conversationID string) error {
	if err := g.messages.AuthorizeMember(ctx, c.actorID, conversationID); err != nil {
		return err
	}
	if g.rooms.Join(c, conversationID) {
		c.log.Debug("conversation_joined", "conversation", conversationID)
	}
	payload, err := realtime.Encode(realtime.EventConversationJoined, realtime.ConversationRef{
		ConversationID: conversationID,
	})
	if err != nil {
		return err
	}
	g.fanout.ToConn(c, payload)
	return nil
}

func (g *Gateway) replyError(c *Client, event string, err error) {
	code := chat.Code(err)
	message := err.Error()
	switch code {
	case chat.CodeStorage, chat.CodeInternal:
		c.log.Error("event_failed", "event", event, "error", err)
		message = "internal error"
	default:
		c.log.Debug("event_rejected", "event", event, "code", code, "error", err)
	}

	payload, encErr := realtime.Encode(realtime.EventError, realtime.ErrorReply{
		Event:   event,
		Code:    code,
		Message: message,
	})
	if encErr != nil {
		c.log.Error("encode_failed", "event", realtime.EventError, "error", encErr)
		return
	}
	g.fanout.ToConn(c, payload)
}

func decodeData(data json.RawMessage, out any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: malformed data: %v", chat.ErrInvalidArgument, err)
	}
	return nil
}
