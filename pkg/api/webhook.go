package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/bcnofne/shipos/pkg/inbox"
)

// Webhook handles POST /webhook from the chat provider. Signature
// verification happens inside ParseRequest; a mismatch is a 400.
// Command matches are answered in the reply window, everything else is
// classified and dropped into the inbox so the response stays fast.
func (s *Server) Webhook(c *gin.Context) {
	cb, err := webhook.ParseRequest(s.cfg.Notify.LINEChannelSecret, c.Request)
	if err != nil {
		s.logger.Warn("Webhook rejected", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	for _, event := range cb.Events {
		msgEvent, ok := event.(webhook.MessageEvent)
		if !ok {
			continue
		}
		text, ok := msgEvent.Message.(webhook.TextMessageContent)
		if !ok {
			continue
		}
		userID := ""
		if src, ok := msgEvent.Source.(webhook.UserSource); ok {
			userID = src.UserId
		}
		s.handleChatText(text.Text, userID, msgEvent.ReplyToken)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleChatText pulses the display, tries the command vocabulary, and
// falls back to the inbox.
func (s *Server) handleChatText(text, userID, replyToken string) {
	s.st.PulseLine("rx")
	s.st.TouchUser()
	s.logger.Info("Chat message", "user", userID, "text", text)

	if reply, handled := s.handleCommand(text); handled {
		s.reply(replyToken, reply)
		return
	}

	ev := s.in.Submit(text, userID)
	if ev.Type == inbox.TypeGoal {
		s.reply(replyToken, "⚓ 了解、針路を検討する。")
	} else {
		s.reply(replyToken, "🔍 確認中、少し待って。")
	}
}

// reply answers within the webhook's reply window. Fail-open: a missed
// reply is not worth failing the webhook for.
func (s *Server) reply(replyToken, text string) {
	if s.line == nil || replyToken == "" || text == "" {
		return
	}
	if err := s.line.Reply(replyToken, text); err != nil {
		s.logger.Error("Chat reply failed", "error", err)
		return
	}
	s.st.PulseLine("tx")
}
