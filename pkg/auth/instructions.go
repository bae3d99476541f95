package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// ShowLoginSetupGuide displays step-by-step instructions for configuring
// credentials for a site that requires a signed-in browser session.
func ShowLoginSetupGuide() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("📚 SITE LOGIN SETUP GUIDE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	fmt.Println("Some sites only show full-resolution media to signed-in users.")
	fmt.Println("Follow these steps to teach the harvester how to log in:")
	fmt.Println()

	fmt.Println("🌐 STEP 1: Find the login page")
	fmt.Println("   - Open the site in your browser and navigate to its login form")
	fmt.Println("   - Copy the page URL, e.g. https://example.com/login")
	fmt.Println()

	fmt.Println("🔧 STEP 2: Find the form selectors")
	fmt.Println("   • Press F12 or Ctrl+Shift+I (Cmd+Option+I on Mac) to open Developer Tools")
	fmt.Println("   • Right-click the username field and choose 'Inspect'")
	fmt.Println("   • Note a CSS selector for it, e.g. input[name=\"username\"] or #email")
	fmt.Println("   • Repeat for the password field and the submit button")
	fmt.Println()

	fmt.Println("🔑 STEP 3: Store the credentials")
	fmt.Println("   Run:")
	fmt.Println()
	fmt.Println("      mediaharvest auth add example.com")
	fmt.Println()
	fmt.Println("   You will be prompted for the username, password, login URL and")
	fmt.Println("   selectors. The password prompt does not echo.")
	fmt.Println()

	fmt.Println("💡 TIPS:")
	fmt.Println("   • After the first successful login the browser session is persisted,")
	fmt.Println("     so later runs reuse it instead of logging in again")
	fmt.Println("   • A success selector (an element only visible when signed in) makes")
	fmt.Println("     login verification much more reliable")
	fmt.Println("   • Use a secondary account where possible")
	fmt.Println()

	fmt.Println("⚠️  SECURITY WARNING:")
	fmt.Println("   • Credentials are stored in your system keychain when available,")
	fmt.Println("     otherwise in an encrypted file under your config directory")
	fmt.Println("   • NEVER commit credential files or .env entries to version control")
	fmt.Println()
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()
}

// ShowQuickSetupGuide shows a condensed version for experienced users
func ShowQuickSetupGuide() {
	fmt.Println("\n🔑 Quick Guide: mediaharvest auth add <domain>")
	fmt.Println("   Need: username, password, login URL and the form's CSS selectors")
	fmt.Println("   Type 'help' for detailed instructions")
}

// PromptLine reads a single line of input with a visible prompt.
func PromptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PromptPassword reads a password from the terminal without echoing it.
func PromptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(password)), nil
}

// PromptCredentials interactively collects full site credentials.
func PromptCredentials(domain string) (*SiteCredentials, error) {
	username, err := PromptLine("Username: ")
	if err != nil {
		return nil, err
	}

	password, err := PromptPassword("Password: ")
	if err != nil {
		return nil, err
	}

	loginURL, err := PromptLine("Login URL: ")
	if err != nil {
		return nil, err
	}

	usernameSel, err := PromptLine("Username field selector: ")
	if err != nil {
		return nil, err
	}

	passwordSel, err := PromptLine("Password field selector: ")
	if err != nil {
		return nil, err
	}

	submitSel, err := PromptLine("Submit button selector: ")
	if err != nil {
		return nil, err
	}

	successSel, err := PromptLine("Success selector (optional): ")
	if err != nil {
		return nil, err
	}

	return &SiteCredentials{
		Domain:   domain,
		Username: username,
		Password: password,
		Steps: LoginSteps{
			LoginURL:         loginURL,
			UsernameSelector: usernameSel,
			PasswordSelector: passwordSel,
			SubmitSelector:   submitSel,
			SuccessSelector:  successSel,
		},
	}, nil
}
