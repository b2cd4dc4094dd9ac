package main

import "time"

const defaultAPITimeout = 10 * time.Second

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags locate the running server.
type APIFlags struct {
	APIUrl     string
	AdminURL   string
	APITimeout time.Duration
}

type CreateFlags struct {
	Task     string
	Type     string
	Priority string
}

type ListFlags struct {
	Sort string
}

type KillFlags struct {
	PIDs []int64
	All  bool
}
