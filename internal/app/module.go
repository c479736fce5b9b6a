package app

import (
	"time"

	"github.com/castaway-live/castaway/internal/app/api/server"
	"github.com/castaway-live/castaway/internal/app/service/entitlement"
	"github.com/castaway-live/castaway/internal/app/service/order"
	"github.com/castaway-live/castaway/internal/app/service/processlog"
	"github.com/castaway-live/castaway/internal/app/service/ratelimit"
	"github.com/castaway-live/castaway/internal/app/service/statistics"
	"github.com/castaway-live/castaway/internal/app/service/webhook"
	"github.com/castaway-live/castaway/internal/platform/db"
	"github.com/castaway-live/castaway/internal/platform/paypal"
	"github.com/castaway-live/castaway/pkg/config"
	"github.com/castaway-live/castaway/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	paypal.Module,
	server.Module,
	entitlement.Module,
	ratelimit.Module,
	order.Module,
	processlog.Module,
	webhook.Module,
	statistics.Module,
)
