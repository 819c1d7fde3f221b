package keyclient_test

import (
	"context"
	"fmt"

	"github.com/CloudNativeWorks/cnw-keyserver/pkg/keyclient"
)

func ExampleClient_ValidateDevice() {
	client := keyclient.NewClient("https://keys.example.com")
	resp, err := client.ValidateDevice(context.Background(), "ABCDE-FGHJK-MNPQR-STVWX")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if !resp.Valid {
		fmt.Printf("Denied: %s\n", resp.Reason)
		return
	}
	fmt.Printf("Valid, %d of %d devices used\n", resp.DevicesUsed, resp.DeviceLimit)
}

func ExampleClient_CreateKey() {
	client := keyclient.NewClient("https://keys.example.com")
	key, err := client.CreateKey(context.Background(), keyclient.CreateKeyRequest{
		ID:          "ABCDE-FGHJK-MNPQR-STVWX",
		Contact:     "ops@example.com",
		DeviceLimit: 3,
		Expiry:      keyclient.Days(30),
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Key %s expires %s\n", key.ID, key.ExpiresAt)
}
