package app

import (
	"troll/internal/cache"
	"troll/internal/service"
	"troll/internal/store"
	"troll/internal/transport/ws"
)

// App wires the long-lived pieces of the process together.
type App struct {
	Store       store.Store
	KV          cache.KV
	AuthService *service.AuthService
	GameService *service.GameService
	WSHub       *ws.Hub
}

func (a *App) Close() {
	if a.GameService != nil {
		a.GameService.Close()
	}
}
