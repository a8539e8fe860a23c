package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-silencewatch/internal/config"
	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

// Channel identifies a notification channel.
type Channel string

// Supported channels, in dispatch order.
const (
	ChannelWebhook  Channel = "webhook"
	ChannelEmail    Channel = "email"
	ChannelZabbix   Channel = "zabbix"
	ChannelMQTT     Channel = "mqtt"
	ChannelShoutrrr Channel = "shoutrrr"
)

// Channels lists every supported channel.
var Channels = []Channel{ChannelWebhook, ChannelEmail, ChannelZabbix, ChannelMQTT, ChannelShoutrrr}

const sendTimeout = 2 * time.Minute

// Notifier fans silence alerts out to the configured channels. Each channel
// is alerted at most once per silence run, and only alerted channels hear
// that the silence ended.
type Notifier struct {
	cfg  *config.Config
	mqtt *MQTTPublisher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu protects the fields below
	mu       sync.Mutex
	runStart time.Time
	sent     map[Channel]bool

	graphClient *GraphClient
	graphCfg    types.GraphConfig
}

// NewNotifier returns a Notifier reading channel settings from cfg.
func NewNotifier(cfg *config.Config) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		cfg:    cfg,
		mqtt:   NewMQTTPublisher(),
		ctx:    ctx,
		cancel: cancel,
		sent:   make(map[Channel]bool),
	}
}

// SilenceAlert sends the alert to every configured channel that has not yet
// been alerted for this run.
func (n *Notifier) SilenceAlert(a silence.Alert) {
	cfg := n.cfg.Snapshot()
	payload := AlertPayload(cfg.StationName, a, cfg.SilenceThreshold)

	n.mu.Lock()
	if !a.StartTime.Equal(n.runStart) {
		n.runStart = a.StartTime
		clear(n.sent)
	}
	var targets []Channel
	for _, ch := range Channels {
		if !n.sent[ch] && configured(&cfg, ch) {
			n.sent[ch] = true
			targets = append(targets, ch)
		}
	}
	n.mu.Unlock()

	n.dispatch(&cfg, targets, payload)
}

// SilenceDetected sends a "silence ended" message to the channels that were
// alerted during the run and clears the per-run state.
func (n *Notifier) SilenceDetected(s silence.Silence) {
	n.mu.Lock()
	var targets []Channel
	if s.StartTime.Equal(n.runStart) {
		for _, ch := range Channels {
			if n.sent[ch] {
				targets = append(targets, ch)
			}
		}
	}
	clear(n.sent)
	n.runStart = time.Time{}
	n.mu.Unlock()

	if len(targets) == 0 {
		return
	}
	cfg := n.cfg.Snapshot()
	n.dispatch(&cfg, targets, EndedPayload(cfg.StationName, s, cfg.SilenceThreshold))
}

// Reset forgets which channels were alerted.
func (n *Notifier) Reset() {
	n.mu.Lock()
	clear(n.sent)
	n.runStart = time.Time{}
	n.mu.Unlock()
}

func (n *Notifier) dispatch(cfg *config.Snapshot, targets []Channel, payload *Payload) {
	for _, ch := range targets {
		n.wg.Go(func() {
			util.LogNotifyResult(func() error { return n.send(cfg, ch, payload) }, string(ch), payload.Event)
		})
	}
}

// send delivers payload on one channel.
func (n *Notifier) send(cfg *config.Snapshot, ch Channel, payload *Payload) error {
	ctx, cancel := context.WithTimeout(n.ctx, sendTimeout)
	defer cancel()

	switch ch {
	case ChannelWebhook:
		return SendWebhook(ctx, cfg.WebhookURL, payload)
	case ChannelEmail:
		client, err := n.graphClientFor(cfg.Graph)
		if err != nil {
			return util.WrapError("create Graph client", err)
		}
		return SendEmail(ctx, client, &cfg.Graph, payload)
	case ChannelZabbix:
		return SendZabbix(ctx, cfg.Zabbix, payload)
	case ChannelMQTT:
		return n.mqtt.Publish(cfg.MQTT, payload)
	case ChannelShoutrrr:
		return SendShoutrrr(cfg.ShoutrrrURLs, payload)
	default:
		return fmt.Errorf("unknown channel %q", ch)
	}
}

// graphClientFor returns the cached Graph client, rebuilding it when the
// settings changed.
func (n *Notifier) graphClientFor(cfg types.GraphConfig) (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil && n.graphCfg == cfg {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(&cfg)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	n.graphCfg = cfg
	return client, nil
}

// Test sends a test message on ch using the current settings.
func (n *Notifier) Test(ctx context.Context, ch Channel) error {
	cfg := n.cfg.Snapshot()
	switch ch {
	case ChannelWebhook:
		return SendTestWebhook(ctx, cfg.WebhookURL, cfg.StationName)
	case ChannelEmail:
		return SendTestEmail(ctx, &cfg.Graph, cfg.StationName)
	case ChannelZabbix:
		return SendTestZabbix(ctx, cfg.Zabbix, cfg.StationName)
	case ChannelMQTT:
		return SendTestMQTT(cfg.MQTT, cfg.StationName)
	case ChannelShoutrrr:
		return SendTestShoutrrr(cfg.ShoutrrrURLs, cfg.StationName)
	default:
		return fmt.Errorf("unknown channel %q", ch)
	}
}

// Wait blocks until all in-flight sends have finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Close cancels in-flight webhook, email and Zabbix requests, waits for all
// sends and disconnects from the MQTT broker. MQTT and shoutrrr sends are
// bounded by their own timeouts.
func (n *Notifier) Close() {
	n.cancel()
	n.wg.Wait()
	n.mqtt.Close()
	slog.Debug("notifier closed")
}

// configured reports whether ch has the settings it needs.
func configured(cfg *config.Snapshot, ch Channel) bool {
	switch ch {
	case ChannelWebhook:
		return cfg.HasWebhook()
	case ChannelEmail:
		return cfg.HasGraph()
	case ChannelZabbix:
		return cfg.HasZabbix()
	case ChannelMQTT:
		return cfg.HasMQTT()
	case ChannelShoutrrr:
		return cfg.HasShoutrrr()
	default:
		return false
	}
}
