package main

//go:generate swag init -g cmd/server/main.go -o docs

// @title           OMS Trading API
// @version         0.1.0
// @description     Multi-tenant order management: instruments, order lifecycle, executions, positions, and P&L snapshots.
// @host            localhost:8080
// @BasePath        /
// @schemes         http

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
