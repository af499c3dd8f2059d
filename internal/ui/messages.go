package ui

import "mapgen/internal/progress"

type stateMsg struct {
	U progress.Update
}

type startedMsg struct {
	Err error
}

type downloadedMsg struct {
	Path string
	Err  error
}

type quitMsg struct{}
