package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oszuidwest/zwfm-silencewatch/internal/notify"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
)

// testTimeout bounds a single notification test.
const testTimeout = 30 * time.Second

// handleNotificationUpdate processes a notifications/<channel>/update command.
func (h *CommandHandler) handleNotificationUpdate(ch notify.Channel, cmd WSCommand, send chan<- any) {
	switch ch {
	case notify.ChannelWebhook:
		HandleCommand(cmd, send, func(req *WebhookUpdateRequest) (any, error) {
			return nil, h.cfg.SetWebhookURL(req.URL)
		})
	case notify.ChannelEmail:
		HandleCommand(cmd, send, func(req *EmailUpdateRequest) (any, error) {
			g := types.GraphConfig{
				TenantID:     req.TenantID,
				ClientID:     req.ClientID,
				ClientSecret: req.ClientSecret,
				FromAddress:  req.FromAddress,
				Recipients:   req.Recipients,
			}
			if g == (types.GraphConfig{}) {
				return nil, h.cfg.SetGraphConfig(g)
			}
			// An empty secret keeps the stored one so clients never need to echo it.
			if g.ClientSecret == "" {
				snap := h.cfg.Snapshot()
				g.ClientSecret = snap.Graph.ClientSecret
			}
			if err := notify.ValidateConfig(&g); err != nil {
				return nil, err
			}
			return nil, h.cfg.SetGraphConfig(g)
		})
	case notify.ChannelZabbix:
		HandleCommand(cmd, send, func(req *ZabbixUpdateRequest) (any, error) {
			return nil, h.cfg.SetZabbixConfig(types.ZabbixConfig{
				Server: req.Server,
				Port:   req.Port,
				Host:   req.Host,
				Key:    req.Key,
			})
		})
	case notify.ChannelMQTT:
		HandleCommand(cmd, send, func(req *MQTTUpdateRequest) (any, error) {
			m := types.MQTTConfig{
				Broker:      req.Broker,
				ClientID:    req.ClientID,
				Username:    req.Username,
				Password:    req.Password,
				TopicPrefix: req.TopicPrefix,
			}
			if m.Password == "" && m.Username != "" {
				snap := h.cfg.Snapshot()
				m.Password = snap.MQTT.Password
			}
			return nil, h.cfg.SetMQTTConfig(m)
		})
	case notify.ChannelShoutrrr:
		HandleCommand(cmd, send, func(req *ShoutrrrUpdateRequest) (any, error) {
			return nil, h.cfg.SetShoutrrrURLs(req.URLs)
		})
	default:
		SendError(send, cmd.Type, fmt.Errorf("unknown notification channel: %s", ch))
	}
}

// handleNotificationGet processes a notifications/<channel>/get command.
func (h *CommandHandler) handleNotificationGet(ch notify.Channel, cmd WSCommand, send chan<- any) {
	snap := h.cfg.Snapshot()
	view := BuildConfigView(&snap)

	switch ch {
	case notify.ChannelWebhook:
		SendSuccess(send, cmd.Type, map[string]string{"url": view.Webhook})
	case notify.ChannelEmail:
		SendSuccess(send, cmd.Type, view.Email)
	case notify.ChannelZabbix:
		SendSuccess(send, cmd.Type, view.Zabbix)
	case notify.ChannelMQTT:
		SendSuccess(send, cmd.Type, view.MQTT)
	case notify.ChannelShoutrrr:
		SendSuccess(send, cmd.Type, map[string]int{"urls": view.ShoutrrrURLs})
	default:
		SendError(send, cmd.Type, fmt.Errorf("unknown notification channel: %s", ch))
	}
}

// handleSecretExpiry reports when the Graph client secret expires. Only the
// email channel has a secret with an expiry.
func (h *CommandHandler) handleSecretExpiry(ch notify.Channel, cmd WSCommand, send chan<- any) {
	if ch != notify.ChannelEmail {
		SendError(send, cmd.Type, fmt.Errorf("channel %s has no expiring secret", ch))
		return
	}
	snap := h.cfg.Snapshot()
	HandleActionAsync(cmd, send, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		return h.expiry.Info(ctx, snap.Graph), nil
	})
}

// handleTest executes a notification test and sends the result to the client.
func (h *CommandHandler) handleTest(send chan<- any, ch notify.Channel) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in test handler", "channel", ch, "panic", r)
			}
		}()

		result := types.WSTestResult{
			Type:     "test_result",
			TestType: string(ch),
			Success:  true,
		}

		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()

		if err := h.notifier.Test(ctx, ch); err != nil {
			slog.Error("test failed", "channel", ch, "error", err)
			result.Success = false
			result.Error = err.Error()
		} else {
			slog.Info("test succeeded", "channel", ch)
		}

		// Send via channel (non-blocking to prevent goroutine leak if channel is closed)
		select {
		case send <- result:
		default:
			slog.Warn("failed to send test response: channel full or closed", "channel", ch)
		}
	}()
}
