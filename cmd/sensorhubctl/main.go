package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/client"
	"github.com/sensorhub/sensorhub/internal/config"
	"github.com/sensorhub/sensorhub/pkg/version"
)

const yamlFormat = "yaml"

var (
	clientConfigFile string
	resourceKinds    = map[string]string{
		"device":  "",
		"alert":   "",
		"fleet":   "",
		"version": "",
		"update":  "",
		"event":   "",
	}
	legalOutputTypes = []string{yamlFormat}
)

func init() {
	clientConfigFile = config.ClientConfigFile()
}

func main() {
	command := NewSensorhubctlCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewSensorhubctlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sensorhubctl",
		Short: "sensorhubctl controls the SensorHub fleet service",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.PersistentFlags().StringVar(&clientConfigFile, "config", clientConfigFile, "path to the client config file")
	cmd.AddCommand(NewCmdGet())
	cmd.AddCommand(NewCmdRegister())
	cmd.AddCommand(NewCmdAcknowledge())
	cmd.AddCommand(NewCmdResolve())
	cmd.AddCommand(NewCmdUpdate())
	cmd.AddCommand(NewCmdDecommission())
	cmd.AddCommand(NewCmdVersion())
	return cmd
}

func NewCmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print client and service version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliVersion := version.Get()
			fmt.Printf("sensorhubctl version: %s\n", cliVersion.String())

			c, err := client.NewFromConfigFile(clientConfigFile)
			if err != nil {
				return fmt.Errorf("creating client: %v", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			serviceVersion, err := c.GetVersion(ctx)
			if err != nil {
				return fmt.Errorf("reading service version: %v", err)
			}
			fmt.Printf("service version: %s\n", serviceVersion.Version)

			if err := version.NewCompatibilityChecker().CheckCompatibility(serviceVersion); err != nil {
				fmt.Printf("warning: %v\n", err)
			}
			return nil
		},
		SilenceUsage: true,
	}
}

func parseAndValidateKindName(arg string) (string, string, error) {
	kind, name, _ := strings.Cut(arg, "/")
	kind = singular(kind)
	if _, ok := resourceKinds[kind]; !ok {
		return "", "", fmt.Errorf("invalid resource kind: %s", kind)
	}
	return kind, name, nil
}

func singular(kind string) string {
	if strings.HasSuffix(kind, "s") {
		return kind[:len(kind)-1]
	}
	return kind
}

type GetOptions struct {
	GroupID  string
	DeviceID string
	Status   string
	Output   string
	Limit    int
}

func NewCmdGet() *cobra.Command {
	o := &GetOptions{Limit: 100}

	cmd := &cobra.Command{
		Use:   "get (devices | device/ID | alerts | fleet | versions | update/ID | events/TOPIC)",
		Short: "get resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, name, err := parseAndValidateKindName(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Lookup("output").Changed && o.Output != yamlFormat {
				return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
			}
			if o.Limit <= 0 {
				return fmt.Errorf("limit must be greater than 0")
			}
			return RunGet(kind, name, o)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&o.GroupID, "group", "g", o.GroupID, "group id selector for listing devices")
	cmd.Flags().StringVarP(&o.DeviceID, "device", "d", o.DeviceID, "device id selector for listing alerts")
	cmd.Flags().StringVarP(&o.Status, "status", "s", o.Status, "status selector for listing alerts (open, acknowledged, resolved)")
	cmd.Flags().StringVarP(&o.Output, "output", "o", o.Output, "output format (yaml)")
	cmd.Flags().IntVar(&o.Limit, "limit", o.Limit, "the maximum number of results returned in the list response")
	return cmd
}

func RunGet(kind, name string, o *GetOptions) error {
	c, err := client.NewFromConfigFile(clientConfigFile)
	if err != nil {
		return fmt.Errorf("creating client: %v", err)
	}
	ctx := context.Background()

	switch kind {
	case "device":
		if len(name) > 0 {
			device, err := c.GetDevice(ctx, name)
			if err != nil {
				return err
			}
			return printYAML(device)
		}
		devices, err := c.ListDevices(ctx, o.GroupID, o.Limit)
		if err != nil {
			return err
		}
		if o.Output == yamlFormat {
			return printYAML(devices)
		}
		printDevicesTable(devices)
	case "alert":
		alerts, err := c.ListAlerts(ctx, o.DeviceID, o.Status, o.Limit)
		if err != nil {
			return err
		}
		if o.Output == yamlFormat {
			return printYAML(alerts)
		}
		printAlertsTable(alerts)
	case "fleet":
		analytics, err := c.GetFleetAnalytics(ctx)
		if err != nil {
			return err
		}
		return printYAML(analytics)
	case "version":
		versions, err := c.ListFirmwareVersions(ctx)
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Println(v)
		}
	case "update":
		if len(name) == 0 {
			return fmt.Errorf("update requires an id, use update/ID")
		}
		update, err := c.GetUpdate(ctx, name)
		if err != nil {
			return err
		}
		return printYAML(update)
	case "event":
		if len(name) == 0 {
			return fmt.Errorf("event requires a topic, use events/TOPIC")
		}
		events, err := c.GetEvents(ctx, name, o.Limit)
		if err != nil {
			return err
		}
		if o.Output == yamlFormat {
			return printYAML(events)
		}
		printEventsTable(events)
	default:
		return fmt.Errorf("unsupported resource kind: %s", kind)
	}
	return nil
}

type RegisterOptions struct {
	SerialNumber    string
	DeviceType      string
	FirmwareVersion string
	Location        string
	GroupID         string
}

func NewCmdRegister() *cobra.Command {
	o := &RegisterOptions{DeviceType: string(api.DeviceTypeSensor)}

	cmd := &cobra.Command{
		Use:   "register --serial SERIAL --firmware VERSION",
		Short: "register a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewFromConfigFile(clientConfigFile)
			if err != nil {
				return fmt.Errorf("creating client: %v", err)
			}

			registration := api.DeviceRegistration{
				SerialNumber:    o.SerialNumber,
				DeviceType:      api.DeviceType(o.DeviceType),
				FirmwareVersion: o.FirmwareVersion,
			}
			if o.Location != "" {
				registration.Location = &o.Location
			}
			if o.GroupID != "" {
				registration.GroupId = &o.GroupID
			}

			device, err := c.RegisterDevice(context.Background(), registration, uuid.NewString())
			if err != nil {
				return err
			}
			return printYAML(device)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&o.SerialNumber, "serial", o.SerialNumber, "device serial number")
	cmd.Flags().StringVar(&o.DeviceType, "type", o.DeviceType, "device type (sensor, gateway, actuator, hybrid)")
	cmd.Flags().StringVar(&o.FirmwareVersion, "firmware", o.FirmwareVersion, "installed firmware version")
	cmd.Flags().StringVar(&o.Location, "location", o.Location, "device location")
	cmd.Flags().StringVar(&o.GroupID, "group", o.GroupID, "device group id")
	_ = cmd.MarkFlagRequired("serial")
	_ = cmd.MarkFlagRequired("firmware")
	return cmd
}

func NewCmdAcknowledge() *cobra.Command {
	return &cobra.Command{
		Use:   "acknowledge ALERT_ID",
		Short: "acknowledge an open alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewFromConfigFile(clientConfigFile)
			if err != nil {
				return fmt.Errorf("creating client: %v", err)
			}
			alert, err := c.AcknowledgeAlert(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printYAML(alert)
		},
		SilenceUsage: true,
	}
}

func NewCmdResolve() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve ALERT_ID",
		Short: "resolve an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewFromConfigFile(clientConfigFile)
			if err != nil {
				return fmt.Errorf("creating client: %v", err)
			}
			alert, err := c.ResolveAlert(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printYAML(alert)
		},
		SilenceUsage: true,
	}
}

type UpdateOptions struct {
	ToVersion string
	Force     bool
}

func NewCmdUpdate() *cobra.Command {
	o := &UpdateOptions{}

	cmd := &cobra.Command{
		Use:   "update DEVICE_ID --to VERSION",
		Short: "initiate a firmware update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewFromConfigFile(clientConfigFile)
			if err != nil {
				return fmt.Errorf("creating client: %v", err)
			}
			update, err := c.InitiateUpdate(context.Background(), api.FirmwareUpdateRequest{
				DeviceId:  args[0],
				ToVersion: o.ToVersion,
				Force:     o.Force,
			})
			if err != nil {
				return err
			}
			return printYAML(update)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&o.ToVersion, "to", o.ToVersion, "target firmware version")
	cmd.Flags().BoolVar(&o.Force, "force", o.Force, "supersede an in-flight update")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func NewCmdDecommission() *cobra.Command {
	return &cobra.Command{
		Use:   "decommission DEVICE_ID",
		Short: "take a device out of the fleet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewFromConfigFile(clientConfigFile)
			if err != nil {
				return fmt.Errorf("creating client: %v", err)
			}
			status := api.DeviceStatusDecommissioned
			device, err := c.UpdateDevice(context.Background(), args[0], api.DeviceUpdate{Status: &status})
			if err != nil {
				return err
			}
			return printYAML(device)
		},
		SilenceUsage: true,
	}
}

func printYAML(v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling resource: %v", err)
	}
	fmt.Printf("%s", string(out))
	return nil
}

func printDevicesTable(devices []api.Device) {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "ID\tSERIAL\tTYPE\tSTATUS\tFIRMWARE\tLAST_SEEN")
	for i := range devices {
		d := &devices[i]
		lastSeen := "-"
		if d.LastSeen != nil {
			lastSeen = d.LastSeen.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", d.Id, d.SerialNumber, d.DeviceType, d.Status, d.FirmwareVersion, lastSeen)
	}
	w.Flush()
}

func printAlertsTable(alerts []api.Alert) {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "ID\tDEVICE\tSEVERITY\tSTATUS\tMESSAGE\tTRIGGERED")
	for i := range alerts {
		a := &alerts[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", a.Id, a.DeviceId, a.Severity, a.Status, a.Message, a.TriggeredAt.Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}

func printEventsTable(events []api.Event) {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "ID\tTYPE\tTIMESTAMP")
	for i := range events {
		e := &events[i]
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Id, e.Type, e.Timestamp.Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}
