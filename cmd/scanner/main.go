// Command scanner runs the device-side check-in flow from a terminal: it
// takes a decoded QR payload, acquires a position fix, and submits the
// check-in to the API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"presence/internal/apiclient"
	"presence/internal/attendance"
	"presence/internal/geo"
	"presence/internal/location"
	"presence/internal/scanner"
)

func main() {
	var (
		apiURL      = flag.String("api", "http://localhost:8082", "base URL of the check-in API")
		authToken   = flag.String("auth-token", "", "bearer token identifying the student")
		payloadArg  = flag.String("payload", "-", "QR payload JSON, @file, or - for stdin")
		positionURL = flag.String("position-url", "", "base URL of a position service; overrides -lat/-lng")
		lat         = flag.Float64("lat", 0, "static latitude when no position service is set")
		lng         = flag.Float64("lng", 0, "static longitude when no position service is set")
		timeout     = flag.Duration("timeout", 10*time.Second, "position acquisition timeout")
		staleness   = flag.Duration("staleness", 60*time.Second, "maximum age of a cached fix")
		cooldown    = flag.Duration("cooldown", 2*time.Second, "pause before rescanning after a failure")
		precheck    = flag.Float64("precheck", 0, "local distance pre-check radius in meters; 0 disables")
	)
	flag.Parse()

	if *authToken == "" {
		log.Fatal("-auth-token is required")
	}

	raw, err := readPayload(*payloadArg)
	if err != nil {
		log.Fatalf("read payload: %v", err)
	}

	var provider location.Provider
	if *positionURL != "" {
		provider = location.NewCached(location.NewHTTPProvider(*positionURL))
	} else {
		provider = location.Static{Point: geo.Point{Lat: *lat, Lng: *lng}}
	}

	ctrl := scanner.New(provider, apiclient.New(*apiURL, *authToken), scanner.Config{
		AcquireOptions:       location.Options{Timeout: *timeout, MaxStaleness: *staleness},
		Cooldown:             *cooldown,
		PreCheckRadiusMeters: *precheck,
		OnTransition: func(s scanner.State) {
			log.Printf("state: %s", s)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Start(ctx); err != nil {
		if errors.Is(err, location.ErrPermissionDenied) {
			log.Fatal("location permission denied; grant access and rerun")
		}
		log.Fatalf("start: %v", err)
	}

	res := ctrl.HandleScan(ctx, raw)
	switch res.State {
	case scanner.StateSucceeded:
		fmt.Printf("checked in: record %s at %s\n", res.Record.ID, res.Record.MarkedAt.Format(time.RFC3339))
	case scanner.StateAlreadyMarked:
		fmt.Println("already marked present for this session")
	default:
		var oor *attendance.OutOfRangeError
		if errors.As(res.Err, &oor) {
			fmt.Printf("out of range: %.0fm away, limit %.0fm\n", oor.DistanceMeters, oor.LimitMeters)
		} else {
			fmt.Printf("check-in failed: %v\n", res.Err)
		}
		os.Exit(1)
	}
}

func readPayload(arg string) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(os.Stdin)
	case strings.HasPrefix(arg, "@"):
		return os.ReadFile(arg[1:])
	default:
		return []byte(arg), nil
	}
}
