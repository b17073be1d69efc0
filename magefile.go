//go:build mage

package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binary = "haven"

// Build builds Haven for Linux with Green Tea GC
func Build() error {
	fmt.Println("Building Haven for Linux with Green Tea GC...")
	env := map[string]string{
		"GOOS":         "linux",
		"GOARCH":       "amd64",
		"CGO_ENABLED":  "0",
		"GOEXPERIMENT": "greenteagc",
	}
	return sh.RunWith(env, "go", "build", "-trimpath", "-o", binary+"-linux-amd64", "./cmd/haven")
}

// BuildLocal builds Haven for the current platform
func BuildLocal() error {
	fmt.Printf("Building Haven for %s/%s...\n", runtime.GOOS, runtime.GOARCH)
	return sh.Run("go", "build", "-o", binary, "./cmd/haven")
}

// Test runs unit tests. Postgres-backed tests are skipped in short mode.
func Test() error {
	fmt.Println("Running tests...")
	return sh.Run("go", "test", "-race", "-short", "./...")
}

// TestIntegration runs the Postgres-backed tests. Needs DATABASE_URL pointing at a
// server where the user may create databases.
func TestIntegration() error {
	if os.Getenv("DATABASE_URL") == "" {
		return fmt.Errorf("DATABASE_URL is required for integration tests")
	}
	fmt.Println("Running integration tests...")
	return sh.Run("go", "test", "-count=1", "./internal/...")
}

// Clean removes build artifacts
func Clean() error {
	fmt.Println("Cleaning build artifacts...")
	_ = os.Remove(binary)
	_ = os.Remove(binary + "-linux-amd64")
	return nil
}

// Update upgrades all Go dependencies
func Update() error {
	fmt.Println("Updating dependencies...")
	if err := sh.Run("go", "get", "-u", "./..."); err != nil {
		return err
	}
	return sh.Run("go", "mod", "tidy")
}

// Fmt runs gofmt on all Go files
func Fmt() error {
	fmt.Println("Formatting code...")
	return sh.Run("go", "fmt", "./...")
}

// Vet runs go vet on all Go files
func Vet() error {
	fmt.Println("Vetting code...")
	return sh.Run("go", "vet", "./...")
}

// Bench runs benchmarks
func Bench() error {
	fmt.Println("Running benchmarks...")
	return sh.Run("go", "test", "-run=^$", "-bench=.", "./...")
}

// Deps downloads dependencies
func Deps() error {
	fmt.Println("Downloading dependencies...")
	return sh.Run("go", "mod", "download")
}

// Tidy tidies go.mod
func Tidy() error {
	fmt.Println("Tidying go.mod...")
	return sh.Run("go", "mod", "tidy")
}

// CI runs all checks for continuous integration
func CI() error {
	mg.SerialDeps(Deps, Fmt, Vet, Test)
	fmt.Println("All CI checks passed!")
	return nil
}
