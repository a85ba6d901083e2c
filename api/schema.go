package api

// Schema is the GraphQL SDL served at /graphql. Money is exposed as Float
// for client compatibility and held as two-place decimals internally. Dates
// are YYYY-MM-DD strings; createdAt values are RFC 3339.
const Schema = `
schema {
	query: Query
	mutation: Mutation
}

type Query {
	me: User
	getTransactions: [Transaction!]!
	getInvoices: [Invoice!]!
	transaction(id: ID!): Transaction
	invoice(id: ID!): Invoice
}

type Mutation {
	signUp(email: String!, password: String!, name: String!): AuthPayload!
	signIn(email: String!, password: String!): AuthPayload!

	createTransaction(
		description: String!
		amount: Float!
		date: String!
		type: String!
		category: String!
	): Transaction!
	updateTransaction(
		id: ID!
		description: String
		amount: Float
		date: String
		type: String
		category: String
	): Transaction!
	deleteTransaction(id: ID!): Boolean!

	createInvoice(
		transactions: [ID!]!
		clientName: String!
		clientEmail: String!
		dueDate: String!
	): Invoice!
	updateInvoiceStatus(id: ID!, status: InvoiceStatus!): Invoice!
	deleteInvoice(id: ID!): Boolean!
}

enum InvoiceStatus {
	PENDING
	PAID
	CANCELLED
}

type User {
	id: ID!
	email: String!
	name: String!
	createdAt: String!
	transactions: [Transaction!]!
	invoices: [Invoice!]!
}

type Transaction {
	id: ID!
	description: String!
	amount: Float!
	date: String!
	type: String!
	category: String!
	createdAt: String!
	invoice: Invoice
	user: User!
}

type Invoice {
	id: ID!
	number: String!
	clientName: String!
	clientEmail: String!
	dueDate: String!
	total: Float!
	status: InvoiceStatus!
	createdAt: String!
	transactions: [Transaction!]!
	user: User!
}

type AuthPayload {
	token: String!
	user: User!
}
`
