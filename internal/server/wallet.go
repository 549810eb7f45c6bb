package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/suspectuso/ada-tracker/internal/blockfrost"
	"github.com/suspectuso/ada-tracker/internal/provider"
	"github.com/suspectuso/ada-tracker/internal/wallet"
)

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if err := wallet.ValidateAddress(address); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.walletData(r.Context(), address)
	if err != nil {
		s.log.Error("fetch wallet", "address", address, "error", err)
		writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) walletData(ctx context.Context, address string) (*provider.WalletResponse, error) {
	if cached, ok := s.wallets.Get(address); ok {
		return cached, nil
	}

	addr, err := s.upstream.GetAddress(ctx, address)
	if errors.Is(err, blockfrost.ErrNotFound) {
		// never used on chain
		resp := &provider.WalletResponse{Address: address, Assets: []provider.Asset{}}
		s.wallets.Add(address, resp)
		return resp, nil
	}
	if err != nil {
		return nil, err
	}

	lovelace, err := strconv.ParseInt(addr.Lovelace(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}

	resp := &provider.WalletResponse{
		Address:      address,
		Balance:      provider.Lovelace(lovelace),
		StakeAddress: addr.StakeAddress,
		Assets:       []provider.Asset{},
	}
	for _, token := range addr.Tokens() {
		resp.Assets = append(resp.Assets, s.describe(ctx, token))
	}

	s.wallets.Add(address, resp)
	return resp, nil
}

// describe joins a held quantity with the asset's metadata. Missing metadata
// is not fatal: the asset is returned with its unit and quantity only.
func (s *Server) describe(ctx context.Context, token blockfrost.Amount) provider.Asset {
	a := provider.Asset{
		Unit:     token.Unit,
		Quantity: token.Quantity,
	}
	if len(token.Unit) >= 56 {
		a.PolicyID, a.AssetName = token.Unit[:56], token.Unit[56:]
	}

	info, ok := s.assets.Get(token.Unit)
	if !ok {
		var err error
		info, err = s.upstream.GetAsset(ctx, token.Unit)
		if err != nil {
			s.log.Warn("fetch asset", "unit", token.Unit, "error", err)
			return a
		}
		s.assets.Add(token.Unit, info)
	}

	if info.PolicyID != "" {
		a.PolicyID, a.AssetName = info.PolicyID, info.AssetName
	}
	a.Fingerprint = info.Fingerprint
	a.OnchainMetadata = info.OnchainMetadata
	if m := info.Metadata; m != nil {
		a.DisplayName = m.Name
		if m.Decimals != nil {
			a.Decimals = *m.Decimals
		}
		a.Metadata = registryMetadata(m)
	}
	return a
}

func registryMetadata(m *blockfrost.TokenMetadata) map[string]any {
	out := map[string]any{}
	if m.Name != "" {
		out["name"] = m.Name
	}
	if m.Description != "" {
		out["description"] = m.Description
	}
	if m.Ticker != "" {
		out["ticker"] = m.Ticker
	}
	if m.URL != "" {
		out["url"] = m.URL
	}
	if m.Logo != "" {
		out["logo"] = m.Logo
	}
	if m.Decimals != nil {
		out["decimals"] = *m.Decimals
	}
	return out
}
