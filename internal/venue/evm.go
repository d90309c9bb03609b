package venue

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/TroveFi/yieldrouter/internal/domain"
)

// routerABIJSON is the minimal V2-style router surface used for quoting.
const routerABIJSON = `[{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"}]`

// EVMVenue configures one on-chain venue behind the adapter.
type EVMVenue struct {
	Descriptor domain.VenueDescriptor
	Router     common.Address
}

// EVMSource implements domain.QuoteSource over a set of V2-style routers on
// one EVM chain, using eth_call against each venue's getAmountsOut. A
// reverted call means the pair has no route and quotes zero; RPC transport
// failures surface as ErrQuoteUnavailable so the scan pass aborts instead of
// scoring against partial venue coverage.
type EVMSource struct {
	client    *ethclient.Client
	routerABI abi.ABI

	mu     sync.RWMutex
	venues map[string]EVMVenue
	order  []string
	tokens map[string]common.Address // asset id -> ERC-20 address
}

// NewEVMSource dials the RPC endpoint and builds an adapter over the given
// venues. tokens maps engine asset identifiers to token contract addresses.
func NewEVMSource(ctx context.Context, rpcURL string, venues []EVMVenue, tokens map[string]common.Address) (*EVMSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("venue: dial %s: %w", rpcURL, err)
	}
	parsed, err := abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		return nil, fmt.Errorf("venue: parse router abi: %w", err)
	}

	src := &EVMSource{
		client:    client,
		routerABI: parsed,
		venues:    make(map[string]EVMVenue, len(venues)),
		tokens:    make(map[string]common.Address, len(tokens)),
	}
	for _, v := range venues {
		src.venues[v.Descriptor.ID] = v
		src.order = append(src.order, v.Descriptor.ID)
	}
	for id, addr := range tokens {
		src.tokens[id] = addr
	}
	return src, nil
}

// Close releases the underlying RPC connection.
func (s *EVMSource) Close() {
	s.client.Close()
}

// RegisterToken maps an asset identifier to its token contract address.
func (s *EVMSource) RegisterToken(asset string, addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[asset] = addr
}

// Quote implements domain.QuoteSource via getAmountsOut on the venue router.
func (s *EVMSource) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int, venue string) (*big.Int, error) {
	s.mu.RLock()
	v, haveVenue := s.venues[venue]
	inAddr, haveIn := s.tokens[tokenIn]
	outAddr, haveOut := s.tokens[tokenOut]
	s.mu.RUnlock()
	if !haveVenue {
		return nil, fmt.Errorf("venue: quote on %s: %w", venue, domain.ErrNotFound)
	}
	if !haveIn || !haveOut {
		// Unmapped token: no route on this adapter.
		return new(big.Int), nil
	}

	data, err := s.routerABI.Pack("getAmountsOut", amountIn, []common.Address{inAddr, outAddr})
	if err != nil {
		return nil, fmt.Errorf("venue: pack getAmountsOut: %w", err)
	}
	res, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &v.Router, Data: data}, nil)
	if err != nil {
		if strings.Contains(err.Error(), "execution reverted") {
			// Routers revert for pairs without a pool.
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("venue: call %s: %w: %w", venue, domain.ErrQuoteUnavailable, err)
	}

	out, err := s.routerABI.Unpack("getAmountsOut", res)
	if err != nil {
		return nil, fmt.Errorf("venue: unpack getAmountsOut: %w", err)
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, fmt.Errorf("venue: unexpected getAmountsOut shape from %s", venue)
	}
	return amounts[len(amounts)-1], nil
}

// ActiveVenues implements domain.QuoteSource.
func (s *EVMSource) ActiveVenues(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, id := range s.order {
		if s.venues[id].Descriptor.Active {
			out = append(out, id)
		}
	}
	return out, nil
}

// VenueInfo implements domain.QuoteSource.
func (s *EVMSource) VenueInfo(ctx context.Context, venue string) (domain.VenueDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.venues[venue]
	if !ok {
		return domain.VenueDescriptor{}, fmt.Errorf("venue: info %s: %w", venue, domain.ErrNotFound)
	}
	return v.Descriptor, nil
}
