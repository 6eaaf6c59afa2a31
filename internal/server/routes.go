package server

import (
	"net/http"
	"time"

	"github.com/berfenger/haier2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/devices", s.DevicesHandler)
	e.DELETE("/devices/:id", s.RemoveDeviceHandler)
	e.GET("/gateway", s.GatewayHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

// DevicesHandler serves the identity and classified attributes of every
// loaded device.
func (s *Server) DevicesHandler(c echo.Context) error {
	ctx := c.Request().Context()
	keys, err := s.store.Keys(ctx, domain.STORE_PREFIX_DEVICE)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	records := make([]domain.DeviceRecord, 0, len(keys))
	for _, key := range keys {
		var record domain.DeviceRecord
		found, err := s.store.Load(ctx, key, &record)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if found {
			records = append(records, record)
		}
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) RemoveDeviceHandler(c echo.Context) error {
	id := c.Param("id")
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.RemoveDeviceRequest{DeviceId: id}, 15*time.Second).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.RemoveDeviceResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		return echo.NewHTTPError(http.StatusInternalServerError, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"device_id": id, "changed": response.Changed})
}

func (s *Server) GatewayHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.LiveSyncStatusRequest{}, 5*time.Second).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.LiveSyncStatusResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	return c.JSON(http.StatusOK, response)
}
