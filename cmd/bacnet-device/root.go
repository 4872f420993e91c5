// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/device"
)

var (
	cfgFile string

	iface              string
	broadcastAddress   string
	port               int
	instance           uint32
	name               string
	description        string
	vendorID           uint32
	vendorName         string
	modelName          string
	firmwareRevision   string
	appSoftwareVersion string
	databaseRevision   uint32
	apduMaxLength      uint32
	apduTimeout        time.Duration
	apduRetries        uint32
	apduSegmentTimeout time.Duration
	location           string
	serialNumber       string
	verbose            bool

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bacnet-device",
	Short: "Hosts a single BACnet/IP device object over UDP",
	Long: `bacnet-device runs a standalone BACnet/IP device server: it answers
Who-Is with I-Am, and serves ReadProperty, WriteProperty,
ReadPropertyMultiple and SubscribeCOV against the device object (and any
objects a future configuration file adds to it).

Examples:
  # Host device instance 1001 on the default port
  bacnet-device serve --instance 1001 --name "Rooftop AHU"

  # Bind to a specific interface and port
  bacnet-device serve --interface 0.0.0.0 --port 47808`,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bacnet-device.yaml)")
	flags.StringVar(&iface, "interface", "0.0.0.0", "local address to bind the BACnet/IP socket to")
	flags.StringVar(&broadcastAddress, "broadcast-address", "", "subnet directed broadcast address (default: limited broadcast 255.255.255.255)")
	flags.IntVar(&port, "port", 47808, "BACnet/IP UDP port")
	flags.Uint32Var(&instance, "instance", 0, "device object instance number (0-4194303)")
	flags.StringVar(&name, "name", "bacnet-device", "device OBJECT_NAME")
	flags.StringVar(&description, "description", "", "device DESCRIPTION")
	flags.Uint32Var(&vendorID, "vendor-id", 0, "VENDOR_IDENTIFIER")
	flags.StringVar(&vendorName, "vendor-name", "", "VENDOR_NAME")
	flags.StringVar(&modelName, "model-name", "", "MODEL_NAME")
	flags.StringVar(&firmwareRevision, "firmware-revision", "", "FIRMWARE_REVISION")
	flags.StringVar(&appSoftwareVersion, "application-software-version", "", "APPLICATION_SOFTWARE_VERSION")
	flags.Uint32Var(&databaseRevision, "database-revision", 0, "initial DATABASE_REVISION")
	flags.Uint32Var(&apduMaxLength, "apdu-max-length", 1476, "MAX_APDU_LENGTH_ACCEPTED")
	flags.DurationVar(&apduTimeout, "apdu-timeout", 6*time.Second, "APDU_TIMEOUT")
	flags.Uint32Var(&apduRetries, "apdu-retries", 3, "NUMBER_OF_APDU_RETRIES")
	flags.DurationVar(&apduSegmentTimeout, "apdu-segment-timeout", 2*time.Second, "APDU_SEGMENT_TIMEOUT")
	flags.StringVar(&location, "location", "", "device LOCATION")
	flags.StringVar(&serialNumber, "serial-number", "", "device SERIAL_NUMBER")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	for _, f := range []string{
		"interface", "broadcast-address", "port", "instance", "name", "description", "vendor-id",
		"vendor-name", "model-name", "firmware-revision",
		"application-software-version", "database-revision",
		"apdu-max-length", "apdu-timeout", "apdu-retries",
		"apdu-segment-timeout", "location", "serial-number", "verbose",
	} {
		_ = viper.BindPFlag(f, flags.Lookup(f))
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".bacnet-device")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BACNET_DEVICE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

// buildConfig assembles a device.Config from the bound flags/config file,
// validating the fields that carry a range or format constraint and
// returning every violation found at once instead of stopping at the first.
func buildConfig() (device.Config, int, error) {
	cfg := device.Config{
		Instance:                   viper.GetUint32("instance"),
		Name:                       viper.GetString("name"),
		Description:                viper.GetString("description"),
		VendorIdentifier:           viper.GetUint32("vendor-id"),
		VendorName:                 viper.GetString("vendor-name"),
		ModelName:                  viper.GetString("model-name"),
		FirmwareRevision:           viper.GetString("firmware-revision"),
		ApplicationSoftwareVersion: viper.GetString("application-software-version"),
		DatabaseRevision:           viper.GetUint32("database-revision"),
		MaxAPDULengthAccepted:      viper.GetUint32("apdu-max-length"),
		APDUTimeout:                viper.GetDuration("apdu-timeout"),
		APDURetries:                viper.GetUint32("apdu-retries"),
		APDUSegmentTimeout:         viper.GetDuration("apdu-segment-timeout"),
		Location:                   viper.GetString("location"),
		SerialNumber:               viper.GetString("serial-number"),
		Port:                       viper.GetInt("port"),
		BroadcastAddress:           viper.GetString("broadcast-address"),
	}

	var errs error
	if cfg.Instance > device.MaxInstance {
		errs = multierr.Append(errs, fmt.Errorf("instance %d exceeds maximum %d", cfg.Instance, device.MaxInstance))
	}
	if cfg.VendorIdentifier > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("vendor-id %d exceeds maximum 65535", cfg.VendorIdentifier))
	}
	if cfg.Name == "" {
		errs = multierr.Append(errs, fmt.Errorf("name must not be empty"))
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("port %d out of range", cfg.Port))
	}
	if cfg.MaxAPDULengthAccepted == 0 {
		errs = multierr.Append(errs, fmt.Errorf("apdu-max-length must be nonzero"))
	}
	if cfg.APDUTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("apdu-timeout must be positive"))
	}
	if cfg.APDUSegmentTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("apdu-segment-timeout must be positive"))
	}
	if cfg.BroadcastAddress != "" && net.ParseIP(cfg.BroadcastAddress) == nil {
		errs = multierr.Append(errs, fmt.Errorf("broadcast-address %q is not a valid IP address", cfg.BroadcastAddress))
	}

	return cfg, viper.GetInt("port"), errs
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the BACnet/IP device server and block until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := buildConfig()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		addr := fmt.Sprintf("%s:%d", viper.GetString("interface"), cfg.Port)
		server := bacnet.NewServer(addr, logger)

		d := device.New(cfg, server, logger)

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		go d.Run(ctx)
		defer d.Stop()

		logger.Info("serving BACnet device", "instance", cfg.Instance, "name", cfg.Name, "addr", addr)
		return server.ListenAndServe(ctx)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("bacnet-device version 1.0.0")
	},
}
