package main

import (
	"fmt"

	"github.com/fatih/color"
)

var (
	colorConnected    = color.New(color.FgGreen, color.Bold)
	colorDisconnected = color.New(color.FgRed, color.Bold)
	colorError        = color.New(color.FgRed)
	colorInfo         = color.New(color.FgCyan)
	colorData         = color.New(color.FgYellow)
)

func printConnected(sessionID string) {
	colorConnected.Printf("connected")
	fmt.Printf(" session=%s\n", sessionID)
}

func printDisconnected() {
	colorDisconnected.Println("disconnected")
}

func printConnectionError(err error) {
	colorError.Printf("connection lost: %v\n", err)
}

func printInfo(format string, args ...any) {
	colorInfo.Printf(format+"\n", args...)
}

func printData(format string, args ...any) {
	colorData.Printf(format+"\n", args...)
}
