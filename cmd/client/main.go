package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/msgpipe/internal/adapters/ws"
	"github.com/dkeye/msgpipe/internal/connector"
	"github.com/dkeye/msgpipe/internal/core"
	"github.com/dkeye/msgpipe/internal/eventloop"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	url := pflag.String("url", "ws://localhost:8080/api/ws/pipe", "server pipe endpoint")
	text := pflag.String("echo", "hello", "payload for the echo request")
	pflag.Parse()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, *url, nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", *url).Msg("dial")
	}

	loop := eventloop.New()
	h := ws.New(conn, loop, "client", ws.DefaultOptions())

	requests := []map[string]any{
		{"type": "ping"},
		{"type": "whoami"},
		{"type": "echo", "data": *text},
	}
	pending := len(requests)

	c, err := connector.New(h)
	if err != nil {
		log.Fatal().Err(err).Msg("connector")
	}
	c.SetIncomingReceiver(connector.ReceiverFunc(func(m *core.Message) bool {
		log.Info().RawJSON("reply", m.Payload).Msg("received")
		pending--
		if pending == 0 {
			cancel()
		}
		return true
	}))
	c.SetErrorHandler(connector.ErrorHandlerFunc(func() {
		log.Warn().Msg("server went away")
		cancel()
	}))

	loop.Post(func() {
		for _, req := range requests {
			b, err := json.Marshal(req)
			if err != nil {
				log.Error().Err(err).Msg("marshal")
				continue
			}
			if !c.Accept(core.NewMessage(b)) {
				log.Warn().Str("type", req["type"].(string)).Msg("send refused")
			}
		}
	})

	loop.Run(ctx)
	c.Close()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
	}
}
