package main

import "archon/internal/store/memfs"

// demoProject is a small React front end held in memory.
func demoProject() *memfs.Dir {
	root := memfs.New("demo")
	root.WriteFile("package.json", `{
  "name": "demo-shop",
  "private": true,
  "scripts": { "dev": "vite" },
  "dependencies": { "react": "^18.3.1", "react-dom": "^18.3.1" }
}
`)
	root.WriteFile("README.md", "# demo-shop\n\nA product list that needs a backend.\n")
	root.WriteFile("src/main.tsx", `import React from 'react';
import ReactDOM from 'react-dom/client';
import App from './App';
import './index.css';

ReactDOM.createRoot(document.getElementById('root')!).render(<App />);
`)
	root.WriteFile("src/App.tsx", `import { useEffect, useState } from 'react';
import { ProductCard } from './components/ProductCard';
import type { Product } from './types';

export default function App() {
  const [products, setProducts] = useState<Product[]>([]);

  useEffect(() => {
    fetch('/api/products').then((r) => r.json()).then(setProducts);
  }, []);

  return (
    <main>
      {products.map((p) => <ProductCard key={p.id} product={p} />)}
    </main>
  );
}
`)
	root.WriteFile("src/types.ts", `export interface Product {
  id: string;
  name: string;
  priceCents: number;
  inStock: boolean;
}
`)
	root.WriteFile("src/components/ProductCard.tsx", `import type { Product } from '../types';

export function ProductCard({ product }: { product: Product }) {
  return (
    <article className="card">
      <h2>{product.name}</h2>
      <p>{(product.priceCents / 100).toFixed(2)}</p>
      <button disabled={!product.inStock}>Add to cart</button>
    </article>
  );
}
`)
	root.WriteFile("src/index.css", ".card { border: 1px solid #ddd; padding: 1rem; }\n")
	root.WriteFile("public/logo.svg", "<svg xmlns=\"http://www.w3.org/2000/svg\"/>\n")
	root.WriteFile("node_modules/react/index.js", "module.exports = {};\n")
	root.WriteFile(".env", "API_URL=http://localhost:8080\n")
	return root
}
