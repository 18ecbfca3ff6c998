package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRenderRoundTrip(t *testing.T) {
	cases := []string{
		"BINANCE-SPOT:SPOT_PAIR:BTC-USDT",
		"DERIBIT:PERPETUAL:BTC-USD@INV",
		"DERIBIT:OPTION:BTC-USD-251231-50000-CALL",
		"AAVE:A_TOKEN:USDC@ethereum",
		"BETFAIR:MATCH_WINNER:EPL-ARS-CHE",
		"crypto:BINANCE-SPOT:SPOT_PAIR:ETH-USDT",
	}
	for _, s := range cases {
		id, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, Render(id), "round trip for %s", s)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"SPOT_PAIR:BTC-USDT",
		"BINANCE-SPOT::BTC-USDT",
		"BINANCE-SPOT:SPOT_PAIR:",
		"BINANCE-SPOT:NOT_A_TYPE:BTC-USDT",
		"DERIBIT:PERPETUAL:BTC-USD@",
		":PERPETUAL:BTC-USD",
		"DERIBIT:OPTION:BTC-USD-251231-50000-BOGUS",
		"a:b:c:d:e",
	}
	for _, s := range cases {
		_, err := Parse(s)
		require.Error(t, err, s)
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
	}
}

func TestSpotPairIsRoutingInstrument(t *testing.T) {
	id, err := Parse("BINANCE-SPOT:SPOT_PAIR:BTC-USDT")
	require.NoError(t, err)
	assert.True(t, id.IsRoutingInstrument())

	id2, err := Parse("DERIBIT:PERPETUAL:BTC-USD@INV")
	require.NoError(t, err)
	assert.False(t, id2.IsRoutingInstrument())
}

func TestPositionKeySpotPair(t *testing.T) {
	id, err := Parse("BINANCE-SPOT:SPOT_PAIR:BTC-USDT")
	require.NoError(t, err)

	key, err := PositionKey(id, "BINANCE-SPOT", "")
	require.NoError(t, err)
	assert.Equal(t, "BINANCE-SPOT:SPOT_ASSET:BTC", key)
}

func TestPositionKeyVenueBoundDerivative(t *testing.T) {
	id, err := Parse("DERIBIT:PERPETUAL:BTC-USD@INV")
	require.NoError(t, err)

	key, err := PositionKey(id, "", "")
	require.NoError(t, err)
	assert.Equal(t, "DERIBIT:PERPETUAL:BTC-USD@INV", key)
}

func TestPositionKeyBettingAppendsSelection(t *testing.T) {
	id, err := Parse("BETFAIR:MATCH_WINNER:EPL-ARS-CHE")
	require.NoError(t, err)

	key, err := PositionKey(id, "", "ARS")
	require.NoError(t, err)
	assert.Equal(t, "BETFAIR:MATCH_WINNER:EPL-ARS-CHE:ARS", key)

	_, err = PositionKey(id, "", "")
	require.Error(t, err)
}
