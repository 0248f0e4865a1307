package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sokofresh/mpesa-checkout/internal/checkout"
	"github.com/sokofresh/mpesa-checkout/internal/transport/middleware"
	"github.com/sokofresh/mpesa-checkout/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	payCmd = &cobra.Command{
		RunE:  runPay,
		Use:   "pay",
		Short: "Initiate a payment and follow it to completion",
		Long: `Initiate an STK push for the given phone and amount, poll the
payments API until the payment succeeds or fails, and print the
WhatsApp confirmation link on success.`,
	}
	payPhone  string
	payAmount float64
	payToken  string
)

func init() {
	payCmd.Flags().StringVar(&payPhone, "phone", "", "payer phone number, 254XXXXXXXXX")
	payCmd.Flags().Float64Var(&payAmount, "amount", 0, "amount in KES")
	payCmd.Flags().StringVar(&payToken, "token", "", "bearer token; minted from the configured api secret when empty")
}

func runPay(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(".")
	if err != nil {
		return err
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	log := logger.L()

	// Reject bad input before touching the network.
	if err := checkout.ValidateInput(payPhone, payAmount); err != nil {
		return err
	}

	token := payToken
	if token == "" {
		issuer := middleware.NewTokenIssuer(cfg.Security.APISecret, cfg.Security.TokenDuration)
		token, err = issuer.Mint("cli")
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
	}

	client := checkout.NewClient(cfg.Checkout.BaseURL, token, log)

	result, err := client.Initiate(context.Background(), payPhone, payAmount)
	if err != nil {
		var gwErr *checkout.GatewayError
		if errors.As(err, &gwErr) {
			return fmt.Errorf("initiate failed: %s", gwErr.Message)
		}
		return err
	}

	session := checkout.NewSession()
	if err := session.Begin(result.PaymentID, payPhone, payAmount); err != nil {
		return err
	}

	fmt.Printf("Payment %s initiated: %s\n", result.PaymentID, result.Message)

	poller := checkout.NewPoller(session, client, checkout.PollerConfig{
		Interval:      cfg.Checkout.PollInterval,
		RedirectDelay: cfg.Checkout.RedirectDelay,
	}, log)
	defer poller.Close()

	redirectCh := make(chan struct{})
	poller.OnTransition(func(t checkout.Transition) {
		fmt.Printf("Status: %s\n", t.To)
	})
	poller.OnRedirect(func() {
		close(redirectCh)
	})
	poller.StartIfNeeded()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		fmt.Println("Interrupted, stopping")
		return nil
	case <-poller.Done():
	}

	snap := session.Snapshot()
	switch snap.Status {
	case checkout.StatusSuccess:
		select {
		case <-sigChan:
			return nil
		case <-redirectCh:
		}
		link := checkout.RedirectURL(cfg.WhatsApp.Phone, cfg.WhatsApp.MessageTemplate, snap.Amount, snap.TransactionCode, snap.Phone)
		fmt.Printf("Payment confirmed, transaction code %s\n", snap.TransactionCode)
		fmt.Printf("Continue on WhatsApp: %s\n", link)
	case checkout.StatusFailed:
		fmt.Println("Payment failed. You can retry with a new pay command.")
	default:
		fmt.Printf("Polling stopped at status %s\n", snap.Status)
	}

	return nil
}
