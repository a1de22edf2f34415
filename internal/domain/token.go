package domain

// Well-known mint addresses.
const (
	// WSOLMint is the wrapped SOL mint. Native SOL balances are reported against it.
	WSOLMint = "So11111111111111111111111111111111111111112"
	// USDCMint is the USDC mint used as the reference pricing asset.
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	// BARKMint is the default traded asset of the market maker.
	BARKMint = "2NTvEssJ2i998V2cMGT4Fy3JhyFnAzHFonDo9dbAkVrg"
)

// Token describes a tradable asset.
type Token struct {
	Mint     string `yaml:"mint"`
	Symbol   string `yaml:"symbol"`
	Decimals int32  `yaml:"decimals"`
}

// IsNative reports whether the token is SOL (balance read from the account lamports).
func (t Token) IsNative() bool {
	return t.Mint == WSOLMint
}

// TradePair is a pair of tokens whose value split is kept at 50/50.
type TradePair struct {
	Token0 Token `yaml:"token0"`
	Token1 Token `yaml:"token1"`
}

// Name returns "SYM0/SYM1".
func (p TradePair) Name() string {
	return p.Token0.Symbol + "/" + p.Token1.Symbol
}

// Default tokens.
var (
	SOL  = Token{Mint: WSOLMint, Symbol: "SOL", Decimals: 9}
	USDC = Token{Mint: USDCMint, Symbol: "USDC", Decimals: 6}
	BARK = Token{Mint: BARKMint, Symbol: "BARK", Decimals: 9}
)
