package config

type columnSpec struct {
	name, sqlType string
}

func buildSchema(identity string, specs ...columnSpec) Schema {
	cols := make([]SchemaColumn, len(specs))
	for i, s := range specs {
		cols[i] = SchemaColumn{Name: s.name, Type: s.sqlType, Nullable: true, Identity: s.name == identity}
	}
	return Schema{Columns: cols}
}

// DefaultSchemas returns the built-in staging schemas used when no DDL is available.
func DefaultSchemas() map[string]Schema {
	return map[string]Schema{
		"Loan": buildSchema("",
			columnSpec{"CustomerID", "INT"},
			columnSpec{"LoanID", "NVARCHAR"},
			columnSpec{"Age", "INT"},
			columnSpec{"JobTitle", "VARCHAR"},
			columnSpec{"EmploymentStatus", "INT"},
			columnSpec{"HomeOwnershipStatus", "VARCHAR"},
			columnSpec{"MaritalStatus", "VARCHAR"},
			columnSpec{"PreviousLoanDefault", "INT"},
			columnSpec{"AnnualIncome", "DECIMAL"},
			columnSpec{"TotalAssets", "DECIMAL"},
			columnSpec{"TotalLiabilities", "DECIMAL"},
			columnSpec{"AnnualExpenses", "DECIMAL"},
			columnSpec{"MonthlySavings", "DECIMAL"},
			columnSpec{"AnnualBonus", "DECIMAL"},
			columnSpec{"DebtToIncomeRatio", "DECIMAL"},
			columnSpec{"PaymentHistoryYears", "INT"},
			columnSpec{"JobTenureMonths", "INT"},
			columnSpec{"NumDependents", "INT"},
			columnSpec{"LoanType", "NVARCHAR"},
			columnSpec{"LoanDate", "DATE"},
			columnSpec{"LoanAmount", "DECIMAL"},
			columnSpec{"LoanDurationMonths", "INT"},
			columnSpec{"InterestRate", "DECIMAL"},
			columnSpec{"DelayedPayments", "INT"},
			columnSpec{"Balance", "DECIMAL"},
			columnSpec{"MonthlyPayment", "DECIMAL"},
			columnSpec{"LoanToValueRatio", "DECIMAL"},
			columnSpec{"PaymentStatus", "NVARCHAR"},
			columnSpec{"AccountID", "NVARCHAR"},
			columnSpec{"AccountType", "NVARCHAR"},
			columnSpec{"PaymentBehavior", "NVARCHAR"},
			columnSpec{"AccountBalance", "DECIMAL"},
			columnSpec{"CreditScore", "INT"},
			columnSpec{"NumBankAccounts", "INT"},
			columnSpec{"NumCreditCards", "INT"},
			columnSpec{"NumLoans", "INT"},
			columnSpec{"NumCreditInquiries", "INT"},
			columnSpec{"CreditUtilizationRatio", "DECIMAL"},
			columnSpec{"CreditHistoryLengthMonths", "INT"},
			columnSpec{"CreditMixRatio", "DECIMAL"},
		),
		"Fraud": buildSchema("",
			columnSpec{"TransactionID", "INT"},
			columnSpec{"CustomerID", "INT"},
			columnSpec{"TransactionDate", "DATETIME"},
			columnSpec{"TransactionTypeName", "NVARCHAR"},
			columnSpec{"DistanceFromHome", "FLOAT"},
			columnSpec{"DistanceFromLastTransaction", "FLOAT"},
			columnSpec{"RatioToMedianTransactionAmount", "FLOAT"},
			columnSpec{"IsOnlineTransaction", "INT"},
			columnSpec{"IsUsedChip", "INT"},
			columnSpec{"IsUsedPIN", "INT"},
			columnSpec{"IsFraudulent", "INT"},
		),
		"Market": buildSchema("MarketID",
			columnSpec{"MarketID", "INT"},
			columnSpec{"MarketDate", "DATE"},
			columnSpec{"MarketName", "NVARCHAR"},
			columnSpec{"OpenValue", "DECIMAL"},
			columnSpec{"CloseValue", "DECIMAL"},
			columnSpec{"HighestValue", "DECIMAL"},
			columnSpec{"LowestValue", "DECIMAL"},
			columnSpec{"Volume", "DECIMAL"},
			columnSpec{"InterestRate", "FLOAT"},
			columnSpec{"ExchangeRate", "FLOAT"},
			columnSpec{"GoldPrice", "DECIMAL"},
			columnSpec{"OilPrice", "DECIMAL"},
			columnSpec{"VIX", "FLOAT"},
			columnSpec{"TEDSpread", "FLOAT"},
			columnSpec{"EFFR", "FLOAT"},
		),
		"Macro": buildSchema("MacroID",
			columnSpec{"MacroID", "INT"},
			columnSpec{"ReportDate", "DATE"},
			columnSpec{"CountryName", "NVARCHAR"},
			columnSpec{"UnemploymentRate", "DECIMAL"},
			columnSpec{"GDP", "DECIMAL"},
			columnSpec{"DebtRatio", "DECIMAL"},
			columnSpec{"DeficitRatio", "DECIMAL"},
			columnSpec{"InflationRate", "DECIMAL"},
			columnSpec{"ConsumerPriceIndex", "DECIMAL"},
			columnSpec{"HousePriceIndex", "DECIMAL"},
		),
	}
}
