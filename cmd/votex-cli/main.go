package main

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"votex/cmd/internal/passphrase"
	"votex/crypto"
	"votex/exchange"
	"votex/rpc"
)

const (
	walletPassEnv = "VOTEX_WALLET_PASS"
	authTokenEnv  = "VOTEX_RPC_TOKEN"
)

var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv(authTokenEnv)

func main() {
	args := os.Args[1:]
	var err error
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	switch args[0] {
	case "generate-key":
		generateKey()
	case "balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		getBalance(args[1])
	case "holder":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		getHolder(args[1])
	case "params":
		getParams()
	case "quote":
		if len(args) < 3 {
			fmt.Println("Error: Please provide an address and an amount.")
			printUsage()
			return
		}
		getQuote(args[1], args[2])
	case "submit":
		if len(args) < 3 {
			fmt.Println("Error: Please provide an amount and a keystore file.")
			printUsage()
			return
		}
		submit(args[1], args[2])
	case "set-cap":
		if len(args) < 2 {
			fmt.Println("Error: Please provide the new cap.")
			printUsage()
			return
		}
		setCap(args[1])
	default:
		fmt.Printf("Unknown command: %s\n", args[0])
		printUsage()
	}
}

func printUsage() {
	fmt.Println(`Usage: votex-cli [--rpc <url>] <command>

Commands:
  generate-key                     Create a keystore file (wallet.keystore)
  balance <address>                Show utility token balance
  holder <address>                 Show voting power, burned counter, headroom
  params                           Show exchange parameters
  quote <address> <amount>         Preview an exchange without settling it
  submit <amount> <keystore-file>  Sign and submit an exchange intent
  set-cap <amount>                 Raise the voting power cap (requires token)

Environment:
  VOTEX_WALLET_PASS  Keystore passphrase (prompted when unset on a terminal)
  VOTEX_RPC_TOKEN    Bearer token for privileged methods
  RPC_URL            JSON-RPC endpoint (default http://localhost:8080)`)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func generateKey() {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}
	fileName := "wallet.keystore"
	passphrase := os.Getenv(walletPassEnv)
	if err := crypto.SaveToKeystore(fileName, key, passphrase); err != nil {
		panic(fmt.Sprintf("Failed to save keystore to %s: %v", fileName, err))
	}
	fmt.Printf("Generated new key and saved to %s\n", fileName)
	fmt.Printf("Your public address is: %s\n", key.PubKey().Address().String())
	fmt.Println("Store this file securely. Set VOTEX_WALLET_PASS to protect it with a passphrase.")
}

func getBalance(addr string) {
	var result rpc.BalanceResult
	if err := call("util_balance", []interface{}{addr}, false, &result); err != nil {
		fmt.Printf("Error fetching balance: %v\n", err)
		return
	}
	fmt.Printf("State for: %s\n", result.Address)
	fmt.Printf("  UTX: %s\n", formatAmount(result.Balance))
}

func getHolder(addr string) {
	var result rpc.HolderResult
	if err := call("exchange_holder", []interface{}{addr}, false, &result); err != nil {
		fmt.Printf("Error fetching holder state: %v\n", err)
		return
	}
	fmt.Printf("Holder: %s\n", result.Address)
	fmt.Printf("  Voting power:   %s VPX\n", formatAmount(result.VotingPower))
	fmt.Printf("  Burned utility: %s UTX\n", formatAmount(result.BurnedUtility))
	fmt.Printf("  Headroom:       %s VPX\n", formatAmount(result.Headroom))
}

func getParams() {
	params, err := fetchParams()
	if err != nil {
		fmt.Printf("Error fetching parameters: %v\n", err)
		return
	}
	fmt.Printf("Domain:           %s v%s (chain %d)\n", params.DomainName, params.DomainVersion, params.ChainID)
	fmt.Printf("Module address:   %s\n", params.ModuleAddress)
	fmt.Printf("Minimum exchange: %s UTX\n", formatAmount(params.MinimumExchange))
	fmt.Printf("Voting power cap: %s VPX\n", formatAmount(params.VotingPowerCap))
}

func getQuote(addr, amount string) {
	var result rpc.SubmitResult
	err := call("exchange_quote", []interface{}{rpc.QuoteParams{Requester: addr, Amount: amount}}, false, &result)
	if err != nil {
		fmt.Printf("Error fetching quote: %v\n", err)
		return
	}
	printReceipt("Quote", &result)
}

func submit(amount, keystorePath string) {
	walletPass, err := passphrase.NewSource(walletPassEnv).Get()
	if err != nil {
		fmt.Printf("Error resolving keystore passphrase: %v\n", err)
		return
	}
	key, err := crypto.LoadFromKeystore(keystorePath, walletPass)
	if err != nil {
		fmt.Printf("Error loading keystore: %v\n", err)
		return
	}
	params, err := fetchParams()
	if err != nil {
		fmt.Printf("Error fetching parameters: %v\n", err)
		return
	}
	module, err := crypto.DecodeAddress(params.ModuleAddress)
	if err != nil {
		fmt.Printf("Error decoding module address: %v\n", err)
		return
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
	if !ok || value.Sign() <= 0 {
		fmt.Println("Error: amount must be a positive decimal string in base units.")
		return
	}

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		fmt.Printf("Error generating nonce: %v\n", err)
		return
	}
	intent := &exchange.Intent{
		Requester: key.PubKey().RawAddress(),
		Amount:    value,
		Nonce:     nonce,
		Expiry:    time.Now().Add(10 * time.Minute).Unix(),
	}
	digest, err := intent.Digest(exchange.Domain{
		Name:    params.DomainName,
		Version: params.DomainVersion,
		ChainID: params.ChainID,
		Module:  module.Raw(),
	})
	if err != nil {
		fmt.Printf("Error computing intent digest: %v\n", err)
		return
	}
	signature, err := ethcrypto.Sign(digest[:], key.PrivateKey)
	if err != nil {
		fmt.Printf("Error signing intent: %v\n", err)
		return
	}

	submitParams := rpc.SubmitIntentParams{
		Requester: key.PubKey().Address().String(),
		Amount:    value.String(),
		Nonce:     "0x" + hex.EncodeToString(nonce[:]),
		Expiry:    intent.Expiry,
		Signature: "0x" + hex.EncodeToString(signature),
	}
	var result rpc.SubmitResult
	if err := call("exchange_submit", []interface{}{submitParams}, true, &result); err != nil {
		fmt.Printf("Error submitting intent: %v\n", err)
		return
	}
	printReceipt("Settled", &result)
}

func setCap(amount string) {
	var result map[string]string
	err := call("exchange_setCap", []interface{}{rpc.SetCapParams{Cap: amount}}, true, &result)
	if err != nil {
		fmt.Printf("Error raising cap: %v\n", err)
		return
	}
	fmt.Printf("Voting power cap raised to %s VPX\n", formatAmount(result["cap"]))
}

func printReceipt(label string, result *rpc.SubmitResult) {
	fmt.Printf("%s for %s\n", label, result.Requester)
	fmt.Printf("  Requested: %s UTX\n", formatAmount(result.RequestedAmount))
	fmt.Printf("  Burned:    %s UTX\n", formatAmount(result.BurnedAmount))
	fmt.Printf("  Granted:   %s VPX\n", formatAmount(result.GrantedPower))
	if result.Partial {
		fmt.Println("  Note: the request was clamped by the voting power cap.")
	}
}

func fetchParams() (*rpc.ParamsResult, error) {
	var params rpc.ParamsResult
	if err := call("exchange_params", nil, false, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

func call(method string, params []interface{}, requireAuth bool, out interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": method, "params": params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		token := strings.TrimSpace(rpcAuthToken)
		if token == "" {
			return fmt.Errorf("set %s to call privileged methods", authTokenEnv)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode response from node")
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("error from node: %s", rpcResp.Error.Message)
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return nil
}

// formatAmount renders a base-unit decimal string as whole tokens with up to
// four fractional digits.
func formatAmount(raw string) string {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return raw
	}
	whole := new(big.Int).Quo(value, big.NewInt(1e18))
	frac := new(big.Int).Mod(value, big.NewInt(1e18))
	if frac.Sign() == 0 {
		return whole.String()
	}
	fracStr := fmt.Sprintf("%018s", frac.String())
	fracStr = strings.TrimRight(fracStr[:4], "0")
	if fracStr == "" {
		return whole.String()
	}
	return whole.String() + "." + fracStr
}
