package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/service"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User management commands",
	Long:  `Commands for managing GreenPulse accounts.`,
}

var createUserCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user",
	Long:  `Create a user interactively. Admin accounts can only be created here or by another admin.`,
	RunE:  runCreateUser,
}

var createUserRole string

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(createUserCmd)
	createUserCmd.Flags().StringVar(&createUserRole, "role", string(models.RoleAdmin), "role: admin, farmer or viewer")
}

func runCreateUser(cmd *cobra.Command, args []string) error {
	role := models.Role(strings.ToLower(createUserRole))
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", createUserRole)
	}

	reader := bufio.NewReader(os.Stdin)

	name, err := prompt(reader, "Enter name: ")
	if err != nil {
		return err
	}
	email, err := prompt(reader, "Enter email: ")
	if err != nil {
		return err
	}
	if name == "" || email == "" {
		return fmt.Errorf("name and email cannot be empty")
	}

	password, err := readPassword("Enter password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return fmt.Errorf("failed to read password confirmation: %w", err)
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	users := service.NewUserService(a.db.DB, a.log.Named("users"))
	user, err := users.Create(cmd.Context(), service.CreateUserInput{
		UserName: name,
		Email:    email,
		Password: password,
		Role:     role,
	})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("User created successfully!\n")
	fmt.Printf("ID: %s\n", user.ID)
	fmt.Printf("Email: %s\n", user.Email)
	fmt.Printf("Role: %s\n", user.Role)
	return nil
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func readPassword(label string) (string, error) {
	fmt.Print(label)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
