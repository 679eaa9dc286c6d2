package main

//go:generate swag init -g cmd/autostock/main.go -o docs

// @title           autostock admin API
// @version         0.1.0
// @description     Market status, manual cycles, orders and cooldown management.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
