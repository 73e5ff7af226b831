//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/starcity-rp/whitelist-ticket-server/pkg/config"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/dispatch"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/gateway"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/infra"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/platform"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/ticket"
)

func Setup() (*Server, error) {
	wire.Build(wire.NewSet(
		ProvideServer,
		ProvideApplication,
		config.ProvideConfig,
		infra.ProvideLoggerFactory,
		infra.ProvideHttpClient,
		platform.ProvideClient,
		ticket.ProvideTasks,
		ticket.ProvideGuard,
		ticket.ProvideStore,
		ticket.ProvideArchiver,
		ticket.ProvideEngine,
		dispatch.ProvideDispatcher,
		gateway.ProvideSession,
		wire.Bind(new(gateway.Handler), new(*dispatch.Dispatcher)),
	))
	return nil, nil
}
