// Command snapnow-device simulates one party of a booking sharing its
// live location against a running server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"snapnow/config"
	"snapnow/services/window"
	"snapnow/sharing"
	"snapnow/utils"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	flags := pflag.NewFlagSet("snapnow-device", pflag.ExitOnError)
	flags.String("api", "http://localhost:8080", "server base URL")
	flags.String("booking", "", "booking id")
	flags.String("role", sharing.RoleCustomer, "customer or photographer")
	flags.String("user-id", "", "mint a development session for this user id")
	flags.String("session-token", "", "existing session token")
	flags.String("date", time.Now().Format("2006-01-02"), "scheduled date (YYYY-MM-DD)")
	flags.String("time", "", "scheduled time, e.g. 2:00 PM or 14:00")
	flags.Float64("lat", 51.5074, "starting latitude")
	flags.Float64("lng", -0.1278, "starting longitude")
	flags.Duration("interval", 3*time.Second, "simulated fix interval")
	flags.Duration("close-after", 0, "end sharing this long after the scheduled start (0 = never)")
	flags.Bool("deny", false, "deny location permission")
	flags.Bool("stream", false, "follow the other party over WebSocket instead of polling")
	_ = flags.Parse(os.Args[1:])

	config.LoadConfig()
	viper.SetEnvPrefix("SNAPNOW_DEVICE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := utils.GetLogger()

	if err := run(logger); err != nil {
		logger.Fatal("snapnow-device failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	bookingID := viper.GetString("booking")
	if bookingID == "" || viper.GetString("time") == "" {
		return fmt.Errorf("--booking and --time are required")
	}

	token := viper.GetString("session-token")
	if token == "" && viper.GetString("user-id") != "" {
		minted, err := utils.GenerateToken(viper.GetString("user-id"), 24*time.Hour)
		if err != nil {
			return fmt.Errorf("mint session: %w", err)
		}
		token = minted
	}
	if token == "" {
		return fmt.Errorf("either --session-token or --user-id is required")
	}

	client, err := sharing.NewClient(viper.GetString("api"),
		sharing.WithSessionCookie(config.AppConfig.SessionCookieName, token),
		sharing.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	geo := sharing.NewSimulatedGeolocator(viper.GetFloat64("lat"), viper.GetFloat64("lng"))
	geo.Interval = viper.GetDuration("interval")
	geo.Deny = viper.GetBool("deny")

	transport := sharing.TransportPoll
	if viper.GetBool("stream") {
		transport = sharing.TransportStream
	}

	session, err := sharing.NewSession(client, geo, sharing.Options{
		BookingID:     bookingID,
		Role:          viper.GetString("role"),
		ScheduledDate: viper.GetString("date"),
		ScheduledTime: viper.GetString("time"),
		Zone:          config.Location(),
		ClosePolicy:   window.CloseAfter(viper.GetDuration("close-after")),
		Transport:     transport,
		Logger:        logger,
		OnLocationUpdate: func(p *sharing.Position) {
			if p == nil {
				logger.Info("Own location cleared")
				return
			}
			logger.Info("Own location", zap.Float64("lat", p.Lat), zap.Float64("lng", p.Lng))
		},
		OnOtherPartyLocation: func(loc *sharing.CounterpartyLocation) {
			if loc == nil {
				logger.Info("Other party is not sharing")
				return
			}
			logger.Info("Other party location",
				zap.Float64("lat", loc.Lat), zap.Float64("lng", loc.Lng), zap.Time("updatedAt", loc.UpdatedAt))
		},
		OnStateChange: func(st sharing.Status) {
			fields := []zap.Field{zap.Stringer("state", st.State)}
			if st.MinutesUntilAvailable != nil {
				fields = append(fields, zap.Int("minutesUntilAvailable", *st.MinutesUntilAvailable))
			}
			if st.ErrorMessage != "" {
				fields = append(fields, zap.String("error", st.ErrorMessage))
			}
			if st.Notice != "" {
				fields = append(fields, zap.String("notice", st.Notice))
			}
			logger.Info("Sharing state", fields...)
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := session.Mount(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	session.Unmount()
	// Let the best-effort DELETE go out.
	time.Sleep(500 * time.Millisecond)
	logger.Info("snapnow-device stopped")
	return nil
}
