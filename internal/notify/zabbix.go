package notify

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

const (
	zabbixTimeout = 5 * time.Second
	// zabbixHeaderSize covers the magic and the little-endian body length.
	zabbixHeaderSize = len("ZBXD\x01") + 8
	maxReplySize     = 64 * 1024
)

var zabbixMagic = []byte("ZBXD\x01")

type zabbixRequest struct {
	Request string       `json:"request"`
	Data    []zabbixItem `json:"data"`
}

type zabbixItem struct {
	Host  string `json:"host"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type zabbixResponse struct {
	Response string `json:"response"`
	Info     string `json:"info"`
}

// writeZabbixFrame writes v as a framed JSON document.
func writeZabbixFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame bytes.Buffer
	frame.Grow(zabbixHeaderSize + len(body))
	frame.Write(zabbixMagic)
	_ = binary.Write(&frame, binary.LittleEndian, uint64(len(body)))
	frame.Write(body)
	_, err = frame.WriteTo(w)
	return err
}

// readZabbixFrame reads one framed document of at most limit bytes.
func readZabbixFrame(r io.Reader, limit uint64) ([]byte, error) {
	header := make([]byte, zabbixHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(header, zabbixMagic) {
		return nil, errors.New("invalid zabbix header")
	}
	size := binary.LittleEndian.Uint64(header[len(zabbixMagic):])
	switch {
	case size == 0:
		return nil, errors.New("empty zabbix frame")
	case size > limit:
		return nil, fmt.Errorf("zabbix frame too large: %d bytes (max %d)", size, limit)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkTrapperReply fails when the server rejected the request or
// accepted none of its items, which usually means an unknown host or key.
func checkTrapperReply(resp zabbixResponse) error {
	if resp.Response != "success" {
		return fmt.Errorf("zabbix rejected data: %s", resp.Info)
	}
	var processed, failed, total int
	if _, err := fmt.Sscanf(resp.Info, "processed: %d; failed: %d; total: %d", &processed, &failed, &total); err != nil {
		return nil
	}
	if processed == 0 {
		return fmt.Errorf("zabbix processed no items of %d (check host/key config)", total)
	}
	return nil
}

func sendTrapper(ctx context.Context, server string, port int, req zabbixRequest) error {
	ctx, cancel := context.WithTimeout(ctx, zabbixTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(server, strconv.Itoa(port)))
	if err != nil {
		return util.WrapError("connect to zabbix", err)
	}
	defer func() { _ = conn.Close() }()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return util.WrapError("set deadline", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()
	if err := writeZabbixFrame(conn, req); err != nil {
		return util.WrapError("write zabbix request", err)
	}
	body, err := readZabbixFrame(conn, maxReplySize)
	if err != nil {
		return util.WrapError("read zabbix reply", err)
	}

	var resp zabbixResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return util.WrapError("parse zabbix reply", err)
	}
	return checkTrapperReply(resp)
}

// SendZabbix sends the payload's trapper value. Incomplete settings are a no-op.
func SendZabbix(ctx context.Context, cfg types.ZabbixConfig, payload *Payload) error {
	if !util.IsConfigured(cfg.Server, cfg.Host, cfg.Key) {
		return nil
	}
	return sendTrapper(ctx, cfg.Server, cfg.Port, zabbixRequest{
		Request: "sender data",
		Data:    []zabbixItem{{Host: cfg.Host, Key: cfg.Key, Value: payload.ZabbixValue()}},
	})
}

// SendTestZabbix sends a test value to verify the Zabbix settings.
func SendTestZabbix(ctx context.Context, cfg types.ZabbixConfig, stationName string) error {
	if !util.IsConfigured(cfg.Server, cfg.Host, cfg.Key) {
		return errors.New("zabbix server, host and key are required")
	}
	return SendZabbix(ctx, cfg, TestPayload(stationName))
}
