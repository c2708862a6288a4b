package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/glimmer-live/glimmer/internal/daemon"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check a running glimmer daemon",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	base := "http://" + cfg.ListenAddr()

	resp, err := client.Get(base + "/health")
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}

	vresp, err := client.Get(base + "/api/version")
	if err != nil {
		return err
	}
	defer vresp.Body.Close()
	var v struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(vresp.Body).Decode(&v); err != nil {
		return err
	}

	fmt.Printf("glimmer %s running at %s\n", v.Version, base)
	return nil
}
