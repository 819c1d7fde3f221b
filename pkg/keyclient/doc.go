// Package keyclient is a Go client for the key server HTTP API.
//
// Licensed applications use Validate or ValidateDevice to check a key at
// startup; the first validation from a device binds it to the key.
//
//	client := keyclient.NewClient("https://keys.example.com")
//	resp, err := client.ValidateDevice(ctx, "ABCDE-FGHJK-MNPQR-STVWX")
//	if err != nil {
//	    return err
//	}
//	if !resp.Valid {
//	    return fmt.Errorf("license rejected: %s", resp.Reason)
//	}
//
// Administrative calls (CreateKey, BlockKey, ResetKey, PublishRelease, ...)
// are used by keyctl and by any tooling that manages keys.
//
// Server errors are mapped onto the sentinel errors of this package, so
// callers can test them with errors.Is. The raw response stays available
// through errors.As with a *ServerError target.
package keyclient
