package mexc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mexc-gateway/pkg/exchanges/common"
)

func TestSign(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"empty body", "", "0eb15ed09c26d51b65c3de4a2c219450f5835924b266e2fe34bb0249b2be2309"},
		{"get params", "page_num=1&page_size=20", "6987dae51d059cad4b61ba0a216db01182dd36e9a940b44db196d8ff1f639913"},
		{"post json", "[123]", "17255307b310a506f28818cca335b60e2f817e451863bcf88c2c4fc6ef716a6d"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Sign("secret", "key", "1700000000000", tc.body)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSignEmptySecret(t *testing.T) {
	_, err := Sign("", "key", "1700000000000", "")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
}

func TestSigningQuerySortsKeys(t *testing.T) {
	got := signingQuery(map[string]string{"start": "100", "interval": "Min1", "symbol": "BTC_USDT"})
	assert.Equal(t, "interval=Min1&start=100&symbol=BTC_USDT", got)
	assert.Equal(t, "", signingQuery(nil))
}

func TestStatusTables(t *testing.T) {
	cases := []struct {
		category common.Category
		code     int
		want     common.Status
	}{
		{common.CategoryRegular, 1, common.StatusNotTraded},
		{common.CategoryRegular, 2, common.StatusNotTraded},
		{common.CategoryRegular, 3, common.StatusAllTraded},
		{common.CategoryRegular, 4, common.StatusCancelled},
		{common.CategoryRegular, 5, common.StatusCancelled},
		{common.CategoryPlan, 1, common.StatusNotTraded},
		{common.CategoryPlan, 2, common.StatusCancelled},
		{common.CategoryPlan, 3, common.StatusAllTraded},
		{common.CategoryPlan, 4, common.StatusCancelled},
		{common.CategoryPlan, 5, common.StatusRejected},
		{common.CategoryStopPlan, 5, common.StatusRejected},
	}
	for _, tc := range cases {
		got, err := StatusFor(tc.category, tc.code)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s code %d", tc.category, tc.code)
	}

	_, err := StatusFor(common.CategoryRegular, 9)
	var warn *ReconcileWarning
	assert.True(t, errors.As(err, &warn))
}

func TestDirectionUsesFinalMapping(t *testing.T) {
	want := map[int]common.Direction{
		1: common.DirectionLong,
		2: common.DirectionShort,
		3: common.DirectionShort,
		4: common.DirectionLong,
	}
	for side, dir := range want {
		got, err := directionFor(channelOrder, side)
		require.NoError(t, err)
		assert.Equal(t, dir, got, "side %d", side)
	}
	_, err := directionFor(channelOrder, 7)
	assert.Error(t, err)
}

func TestContractConversion(t *testing.T) {
	c := contractDetail{Symbol: "BTC_USDT", DisplayName: "BTC_USDT永续", PriceUnit: 0.1, MinVol: 1, PriceScale: 1}.toContract()
	assert.Equal(t, 0.1, c.PriceTick)
	assert.Equal(t, 0.1, c.MinVolume)
	assert.Equal(t, float64(20), c.Leverage)
}
