package ethereum

// BondingCurveABI covers the read-only pricing surface of the BZZ bonding curve.
const BondingCurveABI = `[
	{
		"inputs": [{"internalType": "uint256", "name": "_amount", "type": "uint256"}],
		"name": "buyPrice",
		"outputs": [{"internalType": "uint256", "name": "collateralRequired", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "_amount", "type": "uint256"}],
		"name": "sellReward",
		"outputs": [{"internalType": "uint256", "name": "collateralReward", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "bondedToken",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "collateralToken",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`
