package notify

import (
	"errors"
	"io"
	"log"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

const shoutrrrTimeout = 15 * time.Second

// ErrShoutrrrNotConfigured is returned by the shoutrrr test without URLs.
var ErrShoutrrrNotConfigured = errors.New("no shoutrrr URLs configured")

// newShoutrrrSender builds a quiet router for urls.
func newShoutrrrSender(urls []string) (*router.ServiceRouter, error) {
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, util.WrapError("create shoutrrr sender", err)
	}
	sender.Timeout = shoutrrrTimeout
	sender.SetLogger(log.New(io.Discard, "", 0))
	return sender, nil
}

// SendShoutrrr delivers payload to every service URL. Errors from individual
// services are joined.
func SendShoutrrr(urls []string, payload *Payload) error {
	if len(urls) == 0 {
		return nil
	}

	sender, err := newShoutrrrSender(urls)
	if err != nil {
		return err
	}

	params := stypes.Params{}
	params.SetTitle(payload.Subject())
	errs := sender.Send(payload.Text(), &params)
	return errors.Join(errs...)
}

// SendTestShoutrrr sends a test message through every configured service.
func SendTestShoutrrr(urls []string, stationName string) error {
	if len(urls) == 0 {
		return ErrShoutrrrNotConfigured
	}
	return SendShoutrrr(urls, TestPayload(stationName))
}
