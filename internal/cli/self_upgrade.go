package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/blang/semver"
	"github.com/rhysd/go-github-selfupdate/selfupdate"
	"github.com/spf13/cobra"
)

const releaseRepo = "seuros/haven"

var (
	selfUpgradeRequested bool
	selfUpgradeCheckOnly bool
	selfUpgradeAutoYes   bool
)

// Swapped in tests.
var (
	detectLatest = selfupdate.DetectLatest
	updateTo     = selfupdate.UpdateTo
)

func setupSelfUpgrade() {
	RootCmd.PersistentFlags().BoolVar(&selfUpgradeRequested, "self-upgrade", false, "Upgrade Haven to the latest release and exit")
	RootCmd.PersistentFlags().BoolVar(&selfUpgradeCheckOnly, "self-upgrade-check", false, "Only check whether a newer Haven release is available")
	RootCmd.PersistentFlags().BoolVar(&selfUpgradeAutoYes, "self-upgrade-yes", false, "Skip confirmation prompts when running --self-upgrade")

	existingPreRun := RootCmd.PersistentPreRunE
	RootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if existingPreRun != nil {
			if err := existingPreRun(cmd, args); err != nil {
				return err
			}
		}

		return handleSelfUpgradeFlags()
	}
}

func handleSelfUpgradeFlags() error {
	if !selfUpgradeRequested && !selfUpgradeCheckOnly {
		return nil
	}

	if err := runSelfUpgrade(os.Stdout, os.Stdin, Version, selfUpgradeCheckOnly, selfUpgradeAutoYes); err != nil {
		return err
	}

	os.Exit(0)
	return nil
}

func runSelfUpgrade(w io.Writer, in io.Reader, version string, checkOnly, autoYes bool) error {
	versionStr := strings.TrimSpace(strings.TrimPrefix(version, "v"))
	if versionStr == "" {
		return errors.New("self-upgrade is only available for release builds")
	}

	current, err := semver.Parse(versionStr)
	if err != nil {
		return fmt.Errorf("invalid current version %q: %w", version, err)
	}

	_, _ = fmt.Fprintf(w, "Checking current version... v%s\n", current)

	_, _ = fmt.Fprint(w, "Checking latest released version... ")
	latest, found, err := detectLatest(releaseRepo)
	if err != nil {
		_, _ = fmt.Fprintln(w)
		return fmt.Errorf("failed to check for updates: %w", err)
	}

	if !found {
		_, _ = fmt.Fprintln(w)
		return errors.New("no releases found for Haven")
	}

	latestVer := latest.Version
	_, _ = fmt.Fprintf(w, "v%s\n", latestVer)

	if !latestVer.GT(current) {
		_, _ = fmt.Fprintln(w, "Haven is already up to date")
		return nil
	}

	_, _ = fmt.Fprintf(w, "New release found! v%s --> v%s\n", current, latestVer)
	if checkOnly {
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to determine executable path: %w", err)
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Haven release status:")
	_, _ = fmt.Fprintf(w, "  * Current exe: %q\n", exe)
	_, _ = fmt.Fprintf(w, "  * Target OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if latest.AssetURL != "" {
		_, _ = fmt.Fprintf(w, "  * Download URL: %s\n", latest.AssetURL)
	}
	_, _ = fmt.Fprintln(w)

	if !autoYes {
		_, _ = fmt.Fprintln(w, "The new release will download and replace the current binary.")
		_, _ = fmt.Fprint(w, "Do you want to continue? [Y/n] ")

		response, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read input: %w", err)
		}

		response = strings.ToLower(strings.TrimSpace(response))
		if response != "" && response != "y" && response != "yes" {
			_, _ = fmt.Fprintln(w, "Update cancelled.")
			return nil
		}
	}

	_, _ = fmt.Fprintln(w, "Downloading release...")
	if err := updateTo(latest.AssetURL, exe); err != nil {
		return fmt.Errorf("self-upgrade failed: %w", err)
	}

	_, _ = fmt.Fprintf(w, "Updated Haven to v%s\n", latestVer)
	return nil
}
