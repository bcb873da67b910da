package wallet

import (
	"encoding/json"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/crypto"
	"github.com/skip2/go-qrcode"
)

/* This file exports wallet secrets as QR codes for fixtures that are loaded by hand */

// DefaultSize is the side of an exported png in pixels
const DefaultSize = 256

// Export is the QR payload of a wallet: the secret in plain hex, or sealed with a password
type Export struct {
	Alias     string                      `json:"alias"`
	Address   string                      `json:"address"`
	Scheme    crypto.Scheme               `json:"scheme"`
	Secret    string                      `json:"secret,omitempty"`    // hex private key when not encrypted
	Encrypted *crypto.EncryptedPrivateKey `json:"encrypted,omitempty"` // argon2 + chacha20poly1305 sealed key
}

// NewExport() prepares the wallet for a QR code; an empty password exports the secret in the clear
func NewExport(w *ledger.Wallet, password []byte) (*Export, lib.ErrorI) {
	e := &Export{Alias: w.Alias, Address: w.Address.String(), Scheme: w.Keys.Scheme()}
	if len(password) == 0 {
		e.Secret = w.Keys.PrivateKey.String()
		return e, nil
	}
	sealed, err := crypto.EncryptPrivateKey(w.Keys.PrivateKey, password)
	if err != nil {
		return nil, err
	}
	sealed.Nickname = w.Alias
	e.Encrypted = sealed
	return e, nil
}

// Payload() is the text encoded in the QR code
func (e *Export) Payload() (string, lib.ErrorI) {
	bz, err := lib.MarshalJSON(e)
	if err != nil {
		return "", err
	}
	return string(bz), nil
}

// PNG() renders the QR code as a size x size png
func (e *Export) PNG(size int) ([]byte, lib.ErrorI) {
	payload, err := e.Payload()
	if err != nil {
		return nil, err
	}
	png, er := qrcode.Encode(payload, qrcode.Medium, size)
	if er != nil {
		return nil, lib.ErrEncoding(er.Error())
	}
	return png, nil
}

// WriteFile() saves the QR code as a png
func (e *Export) WriteFile(path string, size int) lib.ErrorI {
	payload, err := e.Payload()
	if err != nil {
		return err
	}
	if er := qrcode.WriteFile(payload, qrcode.Medium, size, path); er != nil {
		return lib.ErrWriteFile(er)
	}
	return nil
}

// Terminal() renders the QR code with unicode half blocks
func (e *Export) Terminal() (string, lib.ErrorI) {
	payload, err := e.Payload()
	if err != nil {
		return "", err
	}
	q, er := qrcode.New(payload, qrcode.Low)
	if er != nil {
		return "", lib.ErrEncoding(er.Error())
	}
	return q.ToSmallString(false), nil
}

// Import() reads a QR payload back into a wallet, opening a sealed secret with the password
func Import(payload string, password []byte) (*ledger.Wallet, lib.ErrorI) {
	e := new(Export)
	if err := json.Unmarshal([]byte(payload), e); err != nil {
		return nil, lib.ErrJSONUnmarshal(err)
	}
	address, err := crypto.DecodeAddress(e.Address)
	if err != nil {
		return nil, err
	}
	var pk crypto.PrivateKeyI
	if e.Encrypted != nil {
		pk, err = crypto.DecryptPrivateKey(e.Encrypted, password)
	} else {
		pk, err = crypto.NewPrivateKeyFromString(e.Scheme, e.Secret)
	}
	if err != nil {
		return nil, err
	}
	return ledger.NewWalletFromKeys(e.Alias, crypto.NewKeyGroup(pk), address.Discrimination)
}
